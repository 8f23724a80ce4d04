package orchestrator

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/normalize"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
	"github.com/jraydirect/wagerloop-odds-engine/internal/provider"
)

// fakeAdapter returns a canned payload or error and counts its calls.
type fakeAdapter struct {
	provider string
	endpoint string
	body     string
	err      error
	calls    int32
}

func (f *fakeAdapter) Provider() string { return f.provider }
func (f *fakeAdapter) Endpoint() string { return f.endpoint }

func (f *fakeAdapter) Fetch(_ context.Context, eventID, sportCode string) (*models.ProviderPayload, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProviderPayload{
		Provider:  f.provider,
		EventID:   eventID,
		SportCode: sportCode,
		HomeTeam:  "Denver Nuggets",
		AwayTeam:  "Miami Heat",
		Body:      json.RawMessage(f.body),
		FetchedAt: time.Date(2025, 11, 3, 18, 0, 0, 0, time.UTC),
	}, nil
}

const moneylineBody = `{"moneyline": {"home": -150, "away": 130}}`
const spreadTotalBody = `{
	"spread": {"line": -3.5, "home": -110, "away": -110},
	"total": {"line": 47.0, "over": -105, "under": -115}
}`

func testOrchestrator(chains ...Chain) *Orchestrator {
	normalizer := normalize.New(zerolog.Nop(), metrics.NewNop())
	return New(chains, normalizer, zerolog.Nop())
}

// TestResolve_MergesPartialMarketsAcrossProviders tests the fan-in merge:
// provider A has moneyline only, provider B has spread/total only, and the
// combined result carries all three market kinds
func TestResolve_MergesPartialMarketsAcrossProviders(t *testing.T) {
	a := &fakeAdapter{provider: "alpha", endpoint: "lines", body: moneylineBody}
	b := &fakeAdapter{provider: "beta", endpoint: "lines", body: spreadTotalBody}

	orch := testOrchestrator(
		Chain{Provider: "alpha", Adapters: []provider.Adapter{a}},
		Chain{Provider: "beta", Adapters: []provider.Adapter{b}},
	)

	result, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, result.Quotes, 2)
	assert.Empty(t, result.Failures)

	markets := make(map[models.Market]bool)
	for _, q := range result.AllQuotes() {
		markets[q.Market] = true
	}
	assert.True(t, markets[models.MarketMoneyline])
	assert.True(t, markets[models.MarketSpread])
	assert.True(t, markets[models.MarketTotal])
}

// TestResolve_PartialSuccess tests that one failing provider is reported as a
// non-fatal failure alongside the successful quotes
func TestResolve_PartialSuccess(t *testing.T) {
	ok := &fakeAdapter{provider: "alpha", endpoint: "lines", body: moneylineBody}
	down := &fakeAdapter{
		provider: "beta",
		endpoint: "lines",
		err:      &oddserr.TransientError{Provider: "beta", Err: context.DeadlineExceeded},
	}

	orch := testOrchestrator(
		Chain{Provider: "alpha", Adapters: []provider.Adapter{ok}},
		Chain{Provider: "beta", Adapters: []provider.Adapter{down}},
	)

	result, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, result.Quotes, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "beta", result.Failures[0].Provider)
	assert.Equal(t, models.FailureTransient, result.Failures[0].Kind)
}

// TestResolve_AllTransient_Exhausted tests that three transient providers
// produce an ExhaustedError listing three reasons, never an untyped panic
func TestResolve_AllTransient_Exhausted(t *testing.T) {
	transient := func(p string) *fakeAdapter {
		return &fakeAdapter{
			provider: p,
			endpoint: "lines",
			err:      &oddserr.TransientError{Provider: p, Err: context.DeadlineExceeded},
		}
	}

	orch := testOrchestrator(
		Chain{Provider: "p1", Adapters: []provider.Adapter{transient("p1")}},
		Chain{Provider: "p2", Adapters: []provider.Adapter{transient("p2")}},
		Chain{Provider: "p3", Adapters: []provider.Adapter{transient("p3")}},
	)

	_, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"p1", "p2", "p3"})
	require.Error(t, err)

	var exhausted *oddserr.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Failures, 3)
	assert.Equal(t, "p1", exhausted.Failures[0].Provider)
	assert.Equal(t, "p2", exhausted.Failures[1].Provider)
	assert.Equal(t, "p3", exhausted.Failures[2].Provider)
	assert.ErrorIs(t, err, oddserr.ErrNoData)
}

// TestResolve_FallbackAdvancesOnTransient tests that a chain advances to its
// next endpoint after a transient failure
func TestResolve_FallbackAdvancesOnTransient(t *testing.T) {
	primary := &fakeAdapter{
		provider: "alpha",
		endpoint: "event_odds",
		err:      &oddserr.TransientError{Provider: "alpha", Err: context.DeadlineExceeded},
	}
	secondary := &fakeAdapter{provider: "alpha", endpoint: "sport_odds", body: moneylineBody}

	orch := testOrchestrator(Chain{Provider: "alpha", Adapters: []provider.Adapter{primary, secondary}})

	result, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha"})
	require.NoError(t, err)
	assert.Len(t, result.Quotes, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primary.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondary.calls))
}

// TestResolve_FallbackAdvancesOnEventNotFound tests that an unknown event id
// advances the chain since providers use different id namespaces
func TestResolve_FallbackAdvancesOnEventNotFound(t *testing.T) {
	primary := &fakeAdapter{
		provider: "alpha",
		endpoint: "event_odds",
		err:      &oddserr.EventNotFoundError{Provider: "alpha", EventID: "E1"},
	}
	secondary := &fakeAdapter{provider: "alpha", endpoint: "sport_odds", body: moneylineBody}

	orch := testOrchestrator(Chain{Provider: "alpha", Adapters: []provider.Adapter{primary, secondary}})

	result, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha"})
	require.NoError(t, err)
	assert.Len(t, result.Quotes, 1)
}

// TestResolve_PermanentHaltsChain tests that a permanent rejection stops the
// chain without trying the remaining endpoints
func TestResolve_PermanentHaltsChain(t *testing.T) {
	primary := &fakeAdapter{
		provider: "alpha",
		endpoint: "event_odds",
		err:      &oddserr.PermanentError{Provider: "alpha", StatusCode: 401, Err: assert.AnError},
	}
	secondary := &fakeAdapter{provider: "alpha", endpoint: "sport_odds", body: moneylineBody}

	orch := testOrchestrator(Chain{Provider: "alpha", Adapters: []provider.Adapter{primary, secondary}})

	_, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha"})
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondary.calls), "permanent failure must halt the chain")
}

// TestResolve_NormalizationFailureIsNoUsableQuotes tests that an invariant
// violation downgrades to no_usable_quotes for that provider
func TestResolve_NormalizationFailureIsNoUsableQuotes(t *testing.T) {
	bad := &fakeAdapter{
		provider: "alpha",
		endpoint: "lines",
		body:     `{"spread": {"home_line": -3.5, "away_line": 2.5, "home": -110, "away": -110}}`,
	}

	orch := testOrchestrator(Chain{Provider: "alpha", Adapters: []provider.Adapter{bad}})

	_, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha"})
	require.Error(t, err)

	var exhausted *oddserr.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Failures, 1)
	assert.Equal(t, models.FailureNoUsableQuotes, exhausted.Failures[0].Kind)
}

// TestResolve_UnknownProvidersInterleaved tests a request mixing configured
// chains with several unconfigured ids: every unknown id gets its own
// permanent failure while the configured chains resolve concurrently
func TestResolve_UnknownProvidersInterleaved(t *testing.T) {
	a := &fakeAdapter{provider: "alpha", endpoint: "lines", body: moneylineBody}
	b := &fakeAdapter{provider: "beta", endpoint: "lines", body: spreadTotalBody}

	orch := testOrchestrator(
		Chain{Provider: "alpha", Adapters: []provider.Adapter{a}},
		Chain{Provider: "beta", Adapters: []provider.Adapter{b}},
	)

	requested := []string{"alpha", "ghost1", "ghost2", "beta", "ghost3", "ghost4"}
	result, err := orch.Resolve(context.Background(), "E1", "basketball_nba", requested)
	require.NoError(t, err)
	require.Len(t, result.Quotes, 2)
	require.Len(t, result.Failures, 4)

	for i, f := range result.Failures {
		assert.Equal(t, models.FailurePermanent, f.Kind, "failure %d", i)
		assert.Contains(t, f.Reason, "not configured")
	}
	assert.Equal(t, "ghost1", result.Failures[0].Provider)
	assert.Equal(t, "ghost4", result.Failures[3].Provider)
}

// TestResolve_UnknownProvider tests that requesting an unconfigured provider
// records a permanent failure for it
func TestResolve_UnknownProvider(t *testing.T) {
	ok := &fakeAdapter{provider: "alpha", endpoint: "lines", body: moneylineBody}
	orch := testOrchestrator(Chain{Provider: "alpha", Adapters: []provider.Adapter{ok}})

	result, err := orch.Resolve(context.Background(), "E1", "basketball_nba", []string{"alpha", "ghost"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ghost", result.Failures[0].Provider)
	assert.Equal(t, models.FailurePermanent, result.Failures[0].Kind)
}
