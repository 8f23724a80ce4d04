package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

const espnScoreboardJSON = `{
	"events": [{
		"id": "401547439",
		"competitions": [{
			"competitors": [
				{"homeAway": "home", "team": {"displayName": "Denver Nuggets"}},
				{"homeAway": "away", "team": {"displayName": "Miami Heat"}}
			],
			"odds": [{
				"spread": -7.5,
				"overUnder": 221.5,
				"overOdds": -110,
				"underOdds": -110,
				"homeTeamOdds": {"moneyLine": -320, "spreadOdds": -108},
				"awayTeamOdds": {"moneyLine": 260, "spreadOdds": -112}
			}]
		}]
	}]
}`

func testESPNAdapter(t *testing.T, handler http.HandlerFunc) *ESPNAdapter {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewESPNAdapter(ESPNConfig{BaseURL: server.URL}, zerolog.Nop(), metrics.NewNop())
}

// TestESPNAdapter_Fetch_Success tests scoreboard fetch and competitor
// extraction
func TestESPNAdapter_Fetch_Success(t *testing.T) {
	adapter := testESPNAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/site/v2/sports/basketball/nba/scoreboard", r.URL.Path)
		assert.Equal(t, "401547439", r.URL.Query().Get("event"))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(espnScoreboardJSON))
	})

	payload, err := adapter.Fetch(context.Background(), "401547439", "basketball_nba")
	require.NoError(t, err)
	assert.Equal(t, ProviderESPN, payload.Provider)
	assert.Equal(t, "Denver Nuggets", payload.HomeTeam)
	assert.Equal(t, "Miami Heat", payload.AwayTeam)
	assert.Contains(t, string(payload.Body), "homeTeamOdds")
}

// TestESPNAdapter_Fetch_EventNotInScoreboard tests that an absent event id is
// an event-not-found error
func TestESPNAdapter_Fetch_EventNotInScoreboard(t *testing.T) {
	adapter := testESPNAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"events": []}`))
	})

	_, err := adapter.Fetch(context.Background(), "401547439", "basketball_nba")
	require.Error(t, err)

	var notFound *oddserr.EventNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// TestESPNAdapter_Fetch_UnknownSport tests that an unmapped sport code is
// treated as not-found for this provider rather than a hard failure
func TestESPNAdapter_Fetch_UnknownSport(t *testing.T) {
	adapter := testESPNAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no upstream call expected for unmapped sport")
	})

	_, err := adapter.Fetch(context.Background(), "401547439", "cricket_ipl")
	require.Error(t, err)

	var notFound *oddserr.EventNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// TestESPNAdapter_Fetch_SportPathOverride tests config-supplied sport path
// mappings
func TestESPNAdapter_Fetch_SportPathOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apis/site/v2/sports/rugby/premiership/scoreboard", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"events": []}`))
	}))
	t.Cleanup(server.Close)

	adapter := NewESPNAdapter(ESPNConfig{
		BaseURL:    server.URL,
		SportPaths: map[string]string{"rugby_premiership": "rugby/premiership"},
	}, zerolog.Nop(), metrics.NewNop())

	_, err := adapter.Fetch(context.Background(), "12345", "rugby_premiership")
	require.Error(t, err) // empty scoreboard, but the path was honored

	var notFound *oddserr.EventNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
