// Package store persists normalized quote snapshots to Postgres so line
// movement can be analyzed after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// SnapshotStore batches quote rows into odds_quote_snapshots. Duplicate
// observations (same provider, event, market, side and observed-at) are
// ignored on conflict.
type SnapshotStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSnapshotStore creates a store over an existing connection pool. The
// caller owns the pool's lifetime.
func NewSnapshotStore(db *sql.DB, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: logger.With().Str("component", "snapshot_store").Logger(),
	}
}

// Save inserts the given quotes in one statement.
func (s *SnapshotStore) Save(ctx context.Context, quotes []models.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	const cols = 7
	placeholders := make([]string, 0, len(quotes))
	args := make([]interface{}, 0, len(quotes)*cols)

	for i, q := range quotes {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		var line sql.NullFloat64
		if q.Line != nil {
			line = sql.NullFloat64{Float64: *q.Line, Valid: true}
		}
		args = append(args, q.Provider, q.EventID, string(q.Market), string(q.Side), q.Price, line, q.ObservedAt)
	}

	query := `
		INSERT INTO odds_quote_snapshots
			(provider, event_id, market, side, price, line, observed_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (provider, event_id, market, side, observed_at) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert quote snapshots: %w", err)
	}

	s.logger.Debug().Int("quotes", len(quotes)).Msg("saved quote snapshots")
	return nil
}

// Ping verifies connectivity for the readiness probe.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
