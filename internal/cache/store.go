// Package cache bounds upstream call volume: normalized quote sets are held
// under a short TTL keyed by (sport, event), and concurrent requests for the
// same key share one in-flight fetch instead of issuing duplicate upstream
// calls.
package cache

import (
	"context"
	"time"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// DefaultTTL is the cache validity window when none is configured.
const DefaultTTL = 5 * time.Minute

// Entry is one cached resolution: the per-provider quote sets plus the
// failure list from the fetch that produced them. Failures are cached too so
// a provider that was down at fetch time stays visibly down for the whole
// TTL window instead of looking like it quotes no odds.
type Entry struct {
	Quotes   map[string]models.QuoteSet `json:"quotes"`
	Failures []models.ProviderFailure   `json:"failures,omitempty"`
}

// Store abstracts the cache backend so a single replica can run on process
// memory while a fleet shares a Redis instance.
type Store interface {
	// Get returns the entry for a key, with ok=false on a miss or an
	// expired entry.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set replaces the entry for a key wholesale with the given TTL.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}
