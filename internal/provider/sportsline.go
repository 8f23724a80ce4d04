package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

// ProviderSportsline is the provider id for the flat-lines feed adapter.
const ProviderSportsline = "sportsline"

// SportslineConfig holds configuration for the lines feed. The API key rides
// in an Authorization header rather than a query parameter.
type SportslineConfig struct {
	BaseURL   string // e.g. "https://api.sportsline-feeds.com"
	APIKey    string
	Timeout   time.Duration
	RateLimit rate.Limit
}

// SportslineAdapter fetches the flat per-event lines object: top-level
// moneyline/spread/total objects with home/away/over/under prices.
type SportslineAdapter struct {
	cfg     SportslineConfig
	fetcher *fetcher
}

// NewSportslineAdapter creates the lines feed adapter.
func NewSportslineAdapter(cfg SportslineConfig, logger zerolog.Logger, m *metrics.Metrics) *SportslineAdapter {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}
	return &SportslineAdapter{
		cfg:     cfg,
		fetcher: newFetcher(ProviderSportsline, cfg.Timeout, limiter, logger, m),
	}
}

func (a *SportslineAdapter) Provider() string { return ProviderSportsline }

func (a *SportslineAdapter) Endpoint() string { return "lines" }

type sportslineEnvelope struct {
	EventID  string          `json:"event_id"`
	HomeTeam string          `json:"home_team"`
	AwayTeam string          `json:"away_team"`
	Lines    json.RawMessage `json:"lines"`
}

func (a *SportslineAdapter) Fetch(ctx context.Context, eventID, sportCode string) (*models.ProviderPayload, error) {
	endpoint := fmt.Sprintf("%s/v1/lines/%s/%s", a.cfg.BaseURL, sportCode, eventID)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	header.Set("Accept", "application/json")

	body, err := a.fetcher.get(ctx, endpoint, eventID, header)
	if err != nil {
		return nil, err
	}

	var envelope sportslineEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &oddserr.TransientError{
			Provider: ProviderSportsline,
			Err:      fmt.Errorf("decode lines response: %w", err),
		}
	}
	if envelope.EventID == "" || len(envelope.Lines) == 0 {
		return nil, &oddserr.EventNotFoundError{Provider: ProviderSportsline, EventID: eventID}
	}

	return &models.ProviderPayload{
		Provider:  ProviderSportsline,
		EventID:   eventID,
		SportCode: sportCode,
		HomeTeam:  envelope.HomeTeam,
		AwayTeam:  envelope.AwayTeam,
		Body:      envelope.Lines,
		FetchedAt: time.Now().UTC(),
	}, nil
}
