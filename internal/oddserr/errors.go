// Package oddserr defines the typed error taxonomy shared by the provider
// adapters, normalizer and orchestrator. Errors are classified, never thrown
// as bare strings: a TransientError lets the orchestrator advance to the next
// endpoint or provider, a PermanentError halts the provider's chain, and an
// EventNotFoundError advances without counting as a hard failure since
// providers use disjoint event-id namespaces.
package oddserr

import (
	"errors"
	"fmt"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// ErrNoData is returned when every configured provider was exhausted without
// producing a single usable quote.
var ErrNoData = errors.New("no odds data available from any provider")

// TransientError covers network failures, timeouts and 5xx responses. The
// same provider is not retried for this request, but the next one is tried.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %s: transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError covers 4xx responses other than event-not-found, such as a
// malformed API key. The provider's remaining endpoints are not tried.
type PermanentError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("provider %s: permanent failure (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// EventNotFoundError means the provider answered but has no such event in its
// catalog. Different providers use different event-id namespaces, so this
// advances the orchestrator rather than failing the request.
type EventNotFoundError struct {
	Provider string
	EventID  string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("provider %s: event %s not found", e.Provider, e.EventID)
}

// NormalizationError means a payload violated a canonical invariant, for
// example inconsistent spread signs. The raw payload is discarded and the
// provider is treated as having no usable quotes.
type NormalizationError struct {
	Provider string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("provider %s: normalization failed: %s", e.Provider, e.Reason)
}

// ExhaustedError is returned when every requested provider failed. It carries
// the per-provider failure reasons in the caller's priority order.
type ExhaustedError struct {
	EventID  string
	Failures []models.ProviderFailure
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("event %s: all %d providers exhausted", e.EventID, len(e.Failures))
}

func (e *ExhaustedError) Unwrap() error { return ErrNoData }

// Classify maps an adapter or normalizer error to its failure kind.
func Classify(err error) models.FailureKind {
	var perm *PermanentError
	var notFound *EventNotFoundError
	var norm *NormalizationError

	switch {
	case errors.As(err, &notFound):
		return models.FailureEventNotFound
	case errors.As(err, &perm):
		return models.FailurePermanent
	case errors.As(err, &norm):
		return models.FailureNoUsableQuotes
	default:
		return models.FailureTransient
	}
}
