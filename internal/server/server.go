// Package server exposes the engine over HTTP for the mobile client's
// backend-for-frontend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jraydirect/wagerloop-odds-engine/internal/bestprice"
	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

// Odds is the aggregation entry point the handlers call. Implemented by
// cache.Aggregator.
type Odds interface {
	GetOrFetch(ctx context.Context, eventID, sportCode string, providerIDs []string) (*models.AggregationResult, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	odds     Odds
	priority func(sportCode string) []string
	registry *prometheus.Registry
	logger   zerolog.Logger
}

// New creates a Server. priority supplies the per-sport provider order used
// when the caller omits ?providers=.
func New(odds Odds, priority func(string) []string, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	return &Server{
		odds:     odds,
		priority: priority,
		registry: registry,
		logger:   logger.With().Str("component", "http_server").Logger(),
	}
}

// Router builds the chi router with CORS, request ids and request logging.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/odds", s.handleOdds)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return r
}

// oddsResponse is the caller-facing shape: whatever quotes are available plus
// an explicit reason for every provider that produced none.
type oddsResponse struct {
	EventID         string                   `json:"event_id"`
	SportCode       string                   `json:"sport_code"`
	FromCache       bool                     `json:"from_cache"`
	Quotes          []models.MarketQuote     `json:"quotes"`
	BestPrices      []models.BestPrice       `json:"best_prices"`
	PartialFailures []models.ProviderFailure `json:"partial_failures"`
}

type errorResponse struct {
	Error           string                   `json:"error"`
	PartialFailures []models.ProviderFailure `json:"partial_failures,omitempty"`
}

func (s *Server) handleOdds(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event")
	sportCode := r.URL.Query().Get("sport")
	if eventID == "" || sportCode == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "event and sport query parameters are required"})
		return
	}

	providers := splitCSV(r.URL.Query().Get("providers"))
	if len(providers) == 0 {
		providers = s.priority(sportCode)
	}
	if len(providers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no providers requested or configured for sport"})
		return
	}

	result, err := s.odds.GetOrFetch(r.Context(), eventID, sportCode, providers)
	if err != nil {
		var exhausted *oddserr.ExhaustedError
		if errors.As(err, &exhausted) {
			writeJSON(w, http.StatusBadGateway, errorResponse{
				Error:           "all providers exhausted",
				PartialFailures: exhausted.Failures,
			})
			return
		}
		s.logger.Error().Err(err).Str("event_id", eventID).Msg("odds resolution failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	quotes := result.AllQuotes()
	if quotes == nil {
		quotes = []models.MarketQuote{}
	}
	failures := result.Failures
	if failures == nil {
		failures = []models.ProviderFailure{}
	}
	writeJSON(w, http.StatusOK, oddsResponse{
		EventID:         result.EventID,
		SportCode:       result.SportCode,
		FromCache:       result.FromCache,
		Quotes:          quotes,
		BestPrices:      bestprice.Sweep(result.Quotes),
		PartialFailures: failures,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// requestLogger tags every request with an id and logs method, path, status
// and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(r.Context()))

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
