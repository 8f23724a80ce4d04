// Package orchestrator sequences provider adapters to resolve odds for one
// event. Distinct providers fan out concurrently and their partial markets
// merge into one result; within a provider, fallback endpoints are tried one
// at a time, advancing only on transient failures, unknown events or
// payloads that normalized to nothing. A permanent rejection halts that
// provider's chain since every endpoint shares the same credentials.
package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/normalize"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
	"github.com/jraydirect/wagerloop-odds-engine/internal/provider"
)

// Chain is one provider's ordered list of fallback endpoints.
type Chain struct {
	Provider string
	Adapters []provider.Adapter
}

// Orchestrator fans requests out across provider chains and merges the
// results.
type Orchestrator struct {
	chains     map[string]Chain
	normalizer *normalize.Normalizer
	logger     zerolog.Logger
}

// New creates an Orchestrator over the given provider chains.
func New(chains []Chain, normalizer *normalize.Normalizer, logger zerolog.Logger) *Orchestrator {
	byProvider := make(map[string]Chain, len(chains))
	for _, c := range chains {
		byProvider[c.Provider] = c
	}
	return &Orchestrator{
		chains:     byProvider,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Providers returns the configured provider ids.
func (o *Orchestrator) Providers() []string {
	out := make([]string, 0, len(o.chains))
	for p := range o.chains {
		out = append(out, p)
	}
	return out
}

type chainOutcome struct {
	provider string
	set      *models.QuoteSet
	failure  *models.ProviderFailure
}

// Resolve fetches and normalizes quotes for one event from the requested
// providers, in the caller's priority order. Providers that each cover only
// part of the market set merge into a combined result; a request where every
// provider fails returns an ExhaustedError listing the per-provider reasons.
func (o *Orchestrator) Resolve(ctx context.Context, eventID, sportCode string, providerIDs []string) (*models.AggregationResult, error) {
	outcomes := make(map[string]chainOutcome, len(providerIDs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, id := range providerIDs {
		chain, ok := o.chains[id]
		if !ok {
			mu.Lock()
			outcomes[id] = chainOutcome{
				provider: id,
				failure: &models.ProviderFailure{
					Provider: id,
					Kind:     models.FailurePermanent,
					Reason:   "provider not configured",
				},
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(chain Chain) {
			defer wg.Done()
			outcome := o.runChain(ctx, chain, eventID, sportCode)
			mu.Lock()
			outcomes[outcome.provider] = outcome
			mu.Unlock()
		}(chain)
	}
	wg.Wait()

	result := &models.AggregationResult{
		EventID:   eventID,
		SportCode: sportCode,
		Quotes:    make(map[string]models.QuoteSet),
	}
	for _, id := range providerIDs {
		outcome, ok := outcomes[id]
		if !ok {
			continue
		}
		if outcome.set != nil {
			result.Quotes[outcome.provider] = *outcome.set
			continue
		}
		if outcome.failure != nil {
			result.Failures = append(result.Failures, *outcome.failure)
		}
	}

	if len(result.Quotes) == 0 {
		return nil, &oddserr.ExhaustedError{EventID: eventID, Failures: result.Failures}
	}

	o.logger.Info().
		Str("event_id", eventID).
		Str("sport", sportCode).
		Int("providers_ok", len(result.Quotes)).
		Int("providers_failed", len(result.Failures)).
		Msg("resolved odds")
	return result, nil
}

// runChain walks one provider's fallback endpoints until one yields usable
// quotes or the chain is exhausted. The failure reported for an exhausted
// chain is the last endpoint's.
func (o *Orchestrator) runChain(ctx context.Context, chain Chain, eventID, sportCode string) chainOutcome {
	var lastFailure *models.ProviderFailure

	for _, adapter := range chain.Adapters {
		if ctx.Err() != nil {
			lastFailure = &models.ProviderFailure{
				Provider: chain.Provider,
				Kind:     models.FailureTransient,
				Reason:   "timeout: " + ctx.Err().Error(),
			}
			break
		}

		payload, err := adapter.Fetch(ctx, eventID, sportCode)
		if err != nil {
			kind := oddserr.Classify(err)
			lastFailure = &models.ProviderFailure{
				Provider: chain.Provider,
				Kind:     kind,
				Reason:   adapter.Endpoint() + ": " + err.Error(),
			}
			o.logger.Debug().
				Str("provider", chain.Provider).
				Str("endpoint", adapter.Endpoint()).
				Str("kind", string(kind)).
				Err(err).
				Msg("endpoint failed, advancing")
			if kind == models.FailurePermanent {
				break
			}
			continue
		}

		quotes, err := o.normalizer.Normalize(payload, payload.FetchedAt)
		if err != nil || len(quotes) == 0 {
			reason := adapter.Endpoint() + ": no normalizable markets"
			if err != nil {
				reason = adapter.Endpoint() + ": " + err.Error()
			}
			lastFailure = &models.ProviderFailure{
				Provider: chain.Provider,
				Kind:     models.FailureNoUsableQuotes,
				Reason:   reason,
			}
			continue
		}

		return chainOutcome{
			provider: chain.Provider,
			set: &models.QuoteSet{
				Provider:  chain.Provider,
				EventID:   eventID,
				Quotes:    quotes,
				FetchedAt: payload.FetchedAt,
			},
		}
	}

	if lastFailure == nil {
		lastFailure = &models.ProviderFailure{
			Provider: chain.Provider,
			Kind:     models.FailureNoUsableQuotes,
			Reason:   "no endpoints configured",
		}
	}
	return chainOutcome{provider: chain.Provider, failure: lastFailure}
}
