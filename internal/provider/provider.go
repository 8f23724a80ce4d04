// Package provider contains one adapter per upstream odds API. An adapter
// owns its upstream's URL scheme, auth parameter and timeout, deserializes the
// transport payload and validates the top-level result, and nothing more:
// business parsing lives in the normalizer.
package provider

import (
	"context"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// Adapter fetches the raw odds payload for one event from one upstream
// endpoint. Errors are typed per the oddserr taxonomy so the orchestrator can
// decide whether to advance, halt or record.
type Adapter interface {
	// Provider returns the provider id quotes from this adapter carry.
	Provider() string

	// Endpoint returns a short endpoint label for logs and failure reasons.
	Endpoint() string

	// Fetch retrieves the raw payload for the given event. The caller's
	// context carries the request deadline.
	Fetch(ctx context.Context, eventID, sportCode string) (*models.ProviderPayload, error)
}
