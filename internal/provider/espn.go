package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

// ProviderESPN is the provider id for the ESPN scoreboard adapter.
const ProviderESPN = "espn"

// defaultESPNPaths maps engine sport codes onto ESPN's site API path
// segments. Overridable via config for sports not listed here.
var defaultESPNPaths = map[string]string{
	"americanfootball_nfl":    "football/nfl",
	"americanfootball_ncaaf":  "football/college-football",
	"basketball_nba":          "basketball/nba",
	"basketball_ncaab":        "basketball/mens-college-basketball",
	"baseball_mlb":            "baseball/mlb",
	"icehockey_nhl":           "hockey/nhl",
	"soccer_usa_mls":          "soccer/usa.1",
	"soccer_epl":              "soccer/eng.1",
}

// ESPNConfig holds configuration for the ESPN scoreboard endpoint. ESPN needs
// no API key; odds ride along on the public scoreboard feed.
type ESPNConfig struct {
	BaseURL    string            // e.g. "https://site.api.espn.com"
	SportPaths map[string]string // overrides for defaultESPNPaths
	Timeout    time.Duration
	RateLimit  rate.Limit
}

// ESPNAdapter fetches the scoreboard for an event's sport and extracts the
// requested competition, whose odds use the nested homeTeamOdds/awayTeamOdds
// shape.
type ESPNAdapter struct {
	cfg     ESPNConfig
	fetcher *fetcher
}

// NewESPNAdapter creates the ESPN scoreboard adapter.
func NewESPNAdapter(cfg ESPNConfig, logger zerolog.Logger, m *metrics.Metrics) *ESPNAdapter {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}
	return &ESPNAdapter{
		cfg:     cfg,
		fetcher: newFetcher(ProviderESPN, cfg.Timeout, limiter, logger, m),
	}
}

func (a *ESPNAdapter) Provider() string { return ProviderESPN }

func (a *ESPNAdapter) Endpoint() string { return "scoreboard" }

// Envelope structs checked at the adapter boundary. Odds objects inside the
// competition stay raw for the normalizer.
type espnScoreboard struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string            `json:"id"`
	Competitions []json.RawMessage `json:"competitions"`
}

type espnCompetition struct {
	Competitors []espnCompetitor `json:"competitors"`
}

type espnCompetitor struct {
	HomeAway string `json:"homeAway"`
	Team     struct {
		DisplayName string `json:"displayName"`
	} `json:"team"`
}

func (a *ESPNAdapter) Fetch(ctx context.Context, eventID, sportCode string) (*models.ProviderPayload, error) {
	path, ok := a.cfg.SportPaths[sportCode]
	if !ok {
		path, ok = defaultESPNPaths[sportCode]
	}
	if !ok {
		return nil, &oddserr.EventNotFoundError{Provider: ProviderESPN, EventID: eventID}
	}

	endpoint := fmt.Sprintf("%s/apis/site/v2/sports/%s/scoreboard?event=%s", a.cfg.BaseURL, path, eventID)
	body, err := a.fetcher.get(ctx, endpoint, eventID, nil)
	if err != nil {
		return nil, err
	}

	var sb espnScoreboard
	if err := json.Unmarshal(body, &sb); err != nil {
		return nil, &oddserr.TransientError{
			Provider: ProviderESPN,
			Err:      fmt.Errorf("decode scoreboard response: %w", err),
		}
	}

	for _, event := range sb.Events {
		if event.ID != eventID || len(event.Competitions) == 0 {
			continue
		}
		raw := event.Competitions[0]

		var comp espnCompetition
		if err := json.Unmarshal(raw, &comp); err != nil {
			return nil, &oddserr.TransientError{
				Provider: ProviderESPN,
				Err:      fmt.Errorf("decode competition: %w", err),
			}
		}

		payload := &models.ProviderPayload{
			Provider:  ProviderESPN,
			EventID:   eventID,
			SportCode: sportCode,
			Body:      raw,
			FetchedAt: time.Now().UTC(),
		}
		for _, c := range comp.Competitors {
			switch c.HomeAway {
			case "home":
				payload.HomeTeam = c.Team.DisplayName
			case "away":
				payload.AwayTeam = c.Team.DisplayName
			}
		}
		return payload, nil
	}

	return nil, &oddserr.EventNotFoundError{Provider: ProviderESPN, EventID: eventID}
}
