package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

// ProviderTheOddsAPI is the provider id for The Odds API adapters.
const ProviderTheOddsAPI = "theoddsapi"

// TheOddsAPIConfig holds configuration shared by both The Odds API endpoints.
type TheOddsAPIConfig struct {
	BaseURL   string // e.g. "https://api.the-odds-api.com"
	APIKey    string
	Regions   []string // e.g. ["us"]
	Markets   []string // e.g. ["h2h", "spreads", "totals"]
	Timeout   time.Duration
	RateLimit rate.Limit // requests per second; zero disables limiting
}

func (c TheOddsAPIConfig) limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(c.RateLimit, 1)
}

// theOddsAPIEvent is the minimal envelope checked at the adapter boundary.
// Everything else stays raw for the normalizer.
type theOddsAPIEvent struct {
	ID         string          `json:"id"`
	HomeTeam   string          `json:"home_team"`
	AwayTeam   string          `json:"away_team"`
	Bookmakers json.RawMessage `json:"bookmakers"`
}

// TheOddsAPIEventAdapter fetches odds from the per-event endpoint
// (/v4/sports/{sport}/events/{event}/odds).
type TheOddsAPIEventAdapter struct {
	cfg     TheOddsAPIConfig
	fetcher *fetcher
}

// NewTheOddsAPIEventAdapter creates the per-event endpoint adapter.
func NewTheOddsAPIEventAdapter(cfg TheOddsAPIConfig, logger zerolog.Logger, m *metrics.Metrics) *TheOddsAPIEventAdapter {
	return &TheOddsAPIEventAdapter{
		cfg:     cfg,
		fetcher: newFetcher(ProviderTheOddsAPI, cfg.Timeout, cfg.limiter(), logger, m),
	}
}

func (a *TheOddsAPIEventAdapter) Provider() string { return ProviderTheOddsAPI }

func (a *TheOddsAPIEventAdapter) Endpoint() string { return "event_odds" }

func (a *TheOddsAPIEventAdapter) Fetch(ctx context.Context, eventID, sportCode string) (*models.ProviderPayload, error) {
	endpoint := fmt.Sprintf("%s/v4/sports/%s/events/%s/odds", a.cfg.BaseURL, sportCode, eventID)
	body, err := a.fetcher.get(ctx, endpoint+"?"+a.cfg.query(), eventID, nil)
	if err != nil {
		return nil, err
	}

	var event theOddsAPIEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, &oddserr.TransientError{
			Provider: ProviderTheOddsAPI,
			Err:      fmt.Errorf("decode event odds response: %w", err),
		}
	}
	if event.ID == "" {
		return nil, &oddserr.EventNotFoundError{Provider: ProviderTheOddsAPI, EventID: eventID}
	}

	return &models.ProviderPayload{
		Provider:  ProviderTheOddsAPI,
		EventID:   eventID,
		SportCode: sportCode,
		HomeTeam:  event.HomeTeam,
		AwayTeam:  event.AwayTeam,
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// TheOddsAPIBulkAdapter fetches the sport-wide odds list
// (/v4/sports/{sport}/odds) and selects the requested event from it. Used as
// the fallback tier when the per-event endpoint is unavailable.
type TheOddsAPIBulkAdapter struct {
	cfg     TheOddsAPIConfig
	fetcher *fetcher
}

// NewTheOddsAPIBulkAdapter creates the sport-wide fallback adapter.
func NewTheOddsAPIBulkAdapter(cfg TheOddsAPIConfig, logger zerolog.Logger, m *metrics.Metrics) *TheOddsAPIBulkAdapter {
	return &TheOddsAPIBulkAdapter{
		cfg:     cfg,
		fetcher: newFetcher(ProviderTheOddsAPI, cfg.Timeout, cfg.limiter(), logger, m),
	}
}

func (a *TheOddsAPIBulkAdapter) Provider() string { return ProviderTheOddsAPI }

func (a *TheOddsAPIBulkAdapter) Endpoint() string { return "sport_odds" }

func (a *TheOddsAPIBulkAdapter) Fetch(ctx context.Context, eventID, sportCode string) (*models.ProviderPayload, error) {
	endpoint := fmt.Sprintf("%s/v4/sports/%s/odds", a.cfg.BaseURL, sportCode)
	body, err := a.fetcher.get(ctx, endpoint+"?"+a.cfg.query(), eventID, nil)
	if err != nil {
		return nil, err
	}

	var events []json.RawMessage
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, &oddserr.TransientError{
			Provider: ProviderTheOddsAPI,
			Err:      fmt.Errorf("decode sport odds response: %w", err),
		}
	}

	for _, raw := range events {
		var event theOddsAPIEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		if event.ID != eventID {
			continue
		}
		return &models.ProviderPayload{
			Provider:  ProviderTheOddsAPI,
			EventID:   eventID,
			SportCode: sportCode,
			HomeTeam:  event.HomeTeam,
			AwayTeam:  event.AwayTeam,
			Body:      raw,
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	return nil, &oddserr.EventNotFoundError{Provider: ProviderTheOddsAPI, EventID: eventID}
}

func (c TheOddsAPIConfig) query() string {
	regions := c.Regions
	if len(regions) == 0 {
		regions = []string{"us"}
	}
	markets := c.Markets
	if len(markets) == 0 {
		markets = []string{"h2h", "spreads", "totals"}
	}

	params := url.Values{}
	params.Set("apiKey", c.APIKey)
	params.Set("regions", strings.Join(regions, ","))
	params.Set("markets", strings.Join(markets, ","))
	params.Set("oddsFormat", "american")
	params.Set("dateFormat", "iso")
	return params.Encode()
}
