package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

// countingResolver returns a canned result and counts Resolve calls. An
// optional gate blocks completion so tests can pile up concurrent callers.
type countingResolver struct {
	calls  int32
	gate   chan struct{}
	result *models.AggregationResult
	err    error
}

func (r *countingResolver) Resolve(_ context.Context, eventID, sportCode string, _ []string) (*models.AggregationResult, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.gate != nil {
		<-r.gate
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &models.AggregationResult{
		EventID:   eventID,
		SportCode: sportCode,
		Quotes:    testSets("p1"),
	}, nil
}

func newTestAggregator(resolver Resolver, ttl time.Duration) *Aggregator {
	return NewAggregator(NewMemoryStore(), resolver, ttl, metrics.NewNop(), zerolog.Nop())
}

// TestGetOrFetch_CachesResult tests that a second request within the TTL is
// served from cache with zero resolver calls
func TestGetOrFetch_CachesResult(t *testing.T) {
	resolver := &countingResolver{}
	agg := newTestAggregator(resolver, time.Minute)
	ctx := context.Background()

	first, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Quotes, second.Quotes)
	assert.Equal(t, int32(1), atomic.LoadInt32(&resolver.calls))
}

// TestGetOrFetch_SingleFlight tests that N concurrent callers for the same
// key share exactly one in-flight fetch
func TestGetOrFetch_SingleFlight(t *testing.T) {
	resolver := &countingResolver{gate: make(chan struct{})}
	agg := newTestAggregator(resolver, time.Minute)

	const callers = 25
	results := make([]*models.AggregationResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = agg.GetOrFetch(context.Background(), "E1", "basketball_nba", []string{"p1"})
		}(i)
	}

	// Let every caller pile up on the in-flight fetch, then release it.
	time.Sleep(100 * time.Millisecond)
	close(resolver.gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&resolver.calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Quotes, results[i].Quotes)
	}
}

// TestGetOrFetch_DistinctKeysFetchIndependently tests that different cache
// keys do not share a flight
func TestGetOrFetch_DistinctKeysFetchIndependently(t *testing.T) {
	resolver := &countingResolver{}
	agg := newTestAggregator(resolver, time.Minute)
	ctx := context.Background()

	_, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.NoError(t, err)
	_, err = agg.GetOrFetch(ctx, "E2", "basketball_nba", []string{"p1"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&resolver.calls))
}

// TestGetOrFetch_PartialFailuresPassThrough tests that a fresh result's
// failure list reaches the caller while the quotes are cached
func TestGetOrFetch_PartialFailuresPassThrough(t *testing.T) {
	resolver := &countingResolver{
		result: &models.AggregationResult{
			EventID:   "E1",
			SportCode: "basketball_nba",
			Quotes:    testSets("p1"),
			Failures: []models.ProviderFailure{
				{Provider: "p2", Kind: models.FailureTransient, Reason: "timeout"},
			},
		},
	}
	agg := newTestAggregator(resolver, time.Minute)

	result, err := agg.GetOrFetch(context.Background(), "E1", "basketball_nba", []string{"p1", "p2"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "p2", result.Failures[0].Provider)
	require.Len(t, result.Quotes, 1)
}

// TestGetOrFetch_FailuresSurviveCacheHit tests that a cache hit reports the
// same missing providers the original fetch did: a provider that was down at
// fetch time must not look like one that quotes no odds
func TestGetOrFetch_FailuresSurviveCacheHit(t *testing.T) {
	resolver := &countingResolver{
		result: &models.AggregationResult{
			EventID:   "E1",
			SportCode: "basketball_nba",
			Quotes:    testSets("p1"),
			Failures: []models.ProviderFailure{
				{Provider: "p2", Kind: models.FailureTransient, Reason: "timeout"},
			},
		},
	}
	agg := newTestAggregator(resolver, time.Minute)
	ctx := context.Background()

	first, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1", "p2"})
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Len(t, first.Failures, 1)

	second, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1", "p2"})
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Len(t, second.Failures, 1)
	assert.Equal(t, "p2", second.Failures[0].Provider)
	assert.Equal(t, models.FailureTransient, second.Failures[0].Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&resolver.calls))
}

// TestGetOrFetch_KeyIgnoresProviderOrder tests that requests naming the same
// providers in different orders share one cache entry
func TestGetOrFetch_KeyIgnoresProviderOrder(t *testing.T) {
	resolver := &countingResolver{}
	agg := newTestAggregator(resolver, time.Minute)
	ctx := context.Background()

	first, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p2", "p1"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), atomic.LoadInt32(&resolver.calls))

	assert.Equal(t, Key("E1", "nba", []string{"b", "a"}), Key("E1", "nba", []string{"a", "b"}))
	assert.NotEqual(t, Key("E1", "nba", []string{"a"}), Key("E1", "nba", []string{"a", "b"}))
}

// TestGetOrFetch_ExhaustedPropagates tests that a fully failed resolution
// reaches the caller as a typed error and nothing is cached
func TestGetOrFetch_ExhaustedPropagates(t *testing.T) {
	resolver := &countingResolver{
		err: &oddserr.ExhaustedError{EventID: "E1", Failures: []models.ProviderFailure{
			{Provider: "p1", Kind: models.FailureTransient, Reason: "timeout"},
		}},
	}
	agg := newTestAggregator(resolver, time.Minute)
	ctx := context.Background()

	_, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.Error(t, err)

	var exhausted *oddserr.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)

	// A failed resolution must not poison the cache.
	_, err = agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&resolver.calls))
}

// recordingPublisher captures published results.
type recordingPublisher struct {
	mu      sync.Mutex
	results []*models.AggregationResult
}

func (p *recordingPublisher) Publish(_ context.Context, result *models.AggregationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return nil
}

// TestGetOrFetch_PublishesFreshResultsOnly tests that the publisher sees
// fresh fetches but not cache hits
func TestGetOrFetch_PublishesFreshResultsOnly(t *testing.T) {
	resolver := &countingResolver{}
	agg := newTestAggregator(resolver, time.Minute)
	publisher := &recordingPublisher{}
	agg.SetPublisher(publisher)
	ctx := context.Background()

	_, err := agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.NoError(t, err)
	_, err = agg.GetOrFetch(ctx, "E1", "basketball_nba", []string{"p1"})
	require.NoError(t, err)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Len(t, publisher.results, 1)
}
