package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// Resolver produces fresh quotes on a cache miss. Implemented by the
// orchestrator.
type Resolver interface {
	Resolve(ctx context.Context, eventID, sportCode string, providerIDs []string) (*models.AggregationResult, error)
}

// Publisher receives every freshly fetched result, e.g. for a downstream
// quote stream. Optional.
type Publisher interface {
	Publish(ctx context.Context, result *models.AggregationResult) error
}

// Snapshotter persists freshly fetched quotes for historical analysis.
// Optional.
type Snapshotter interface {
	Save(ctx context.Context, quotes []models.MarketQuote) error
}

// Aggregator fronts the resolver with the TTL cache and single-flight
// de-duplication: N concurrent callers for one key produce exactly one
// upstream fetch and all share its result.
type Aggregator struct {
	store    Store
	resolver Resolver
	ttl      time.Duration

	flights singleflight.Group

	publisher Publisher
	snapshots Snapshotter

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAggregator creates an Aggregator. A zero ttl falls back to DefaultTTL.
func NewAggregator(store Store, resolver Resolver, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Aggregator{
		store:    store,
		resolver: resolver,
		ttl:      ttl,
		metrics:  m,
		logger:   logger.With().Str("component", "aggregation_cache").Logger(),
	}
}

// SetPublisher attaches an optional downstream publisher for fresh results.
func (a *Aggregator) SetPublisher(p Publisher) { a.publisher = p }

// SetSnapshotter attaches an optional snapshot store for fresh quotes.
func (a *Aggregator) SetSnapshotter(s Snapshotter) { a.snapshots = s }

// Key builds the cache key for a request. The provider ids are sorted first:
// fan-out makes request order irrelevant to the fetched content, so a,b and
// b,a share one entry, while distinct provider subsets still never alias.
func Key(eventID, sportCode string, providerIDs []string) string {
	sorted := make([]string, len(providerIDs))
	copy(sorted, providerIDs)
	sort.Strings(sorted)
	return sportCode + ":" + eventID + ":" + strings.Join(sorted, ",")
}

// GetOrFetch returns the cached resolution when the entry is still valid,
// otherwise resolves fresh quotes and caches whatever providers succeeded
// together with the non-fatal failure list, so hits report the same missing
// providers the original fetch did.
func (a *Aggregator) GetOrFetch(ctx context.Context, eventID, sportCode string, providerIDs []string) (*models.AggregationResult, error) {
	key := Key(eventID, sportCode, providerIDs)

	entry, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, fetching fresh")
	}
	if ok {
		a.metrics.CacheHits.Inc()
		return &models.AggregationResult{
			EventID:   eventID,
			SportCode: sportCode,
			Quotes:    entry.Quotes,
			Failures:  entry.Failures,
			FromCache: true,
		}, nil
	}
	a.metrics.CacheMisses.Inc()

	v, err, _ := a.flights.Do(key, func() (interface{}, error) {
		result, err := a.resolver.Resolve(ctx, eventID, sportCode, providerIDs)
		if err != nil {
			return nil, err
		}

		if err := a.store.Set(ctx, key, Entry{Quotes: result.Quotes, Failures: result.Failures}, a.ttl); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		a.fanOut(ctx, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AggregationResult), nil
}

// fanOut hands a fresh result to the optional publisher and snapshot store.
// Both are best-effort; failures are logged, never surfaced to the caller.
func (a *Aggregator) fanOut(ctx context.Context, result *models.AggregationResult) {
	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, result); err != nil {
			a.logger.Warn().Err(err).Str("event_id", result.EventID).Msg("quote publish failed")
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Save(ctx, result.AllQuotes()); err != nil {
			a.logger.Warn().Err(err).Str("event_id", result.EventID).Msg("quote snapshot failed")
		}
	}
}
