package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jraydirect/wagerloop-odds-engine/internal/metrics"
	"github.com/jraydirect/wagerloop-odds-engine/internal/oddserr"
)

const defaultTimeout = 8 * time.Second

// fetcher wraps the HTTP plumbing every adapter shares: client-side rate
// limiting, one structured log entry per call, Prometheus counters and the
// status-code to error-taxonomy mapping.
type fetcher struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func newFetcher(provider string, timeout time.Duration, limiter *rate.Limiter, logger zerolog.Logger, m *metrics.Metrics) *fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &fetcher{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		logger:   logger.With().Str("component", provider+"_adapter").Logger(),
		metrics:  m,
	}
}

// get performs one upstream call and returns the response body. Non-2xx
// statuses map onto the error taxonomy: 404/410 means the event is unknown to
// this provider, 429 and 5xx are transient, any other 4xx is permanent.
func (f *fetcher) get(ctx context.Context, fullURL, eventID string, header http.Header) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &oddserr.TransientError{Provider: f.provider, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &oddserr.PermanentError{Provider: f.provider, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		f.metrics.UpstreamRequests.WithLabelValues(f.provider, "error").Inc()
		f.logger.Warn().
			Str("endpoint", redact(fullURL)).
			Dur("latency", latency).
			Err(err).
			Msg("upstream call failed")
		return nil, &oddserr.TransientError{Provider: f.provider, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.metrics.UpstreamRequests.WithLabelValues(f.provider, "error").Inc()
		return nil, &oddserr.TransientError{Provider: f.provider, Err: fmt.Errorf("read response body: %w", err)}
	}

	f.metrics.UpstreamRequests.WithLabelValues(f.provider, statusClass(resp.StatusCode)).Inc()
	f.metrics.UpstreamLatency.WithLabelValues(f.provider).Observe(latency.Seconds())
	f.logger.Info().
		Str("endpoint", redact(fullURL)).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Int("bytes", len(body)).
		Msg("upstream call completed")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &oddserr.EventNotFoundError{Provider: f.provider, EventID: eventID}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &oddserr.TransientError{
			Provider: f.provider,
			Err:      fmt.Errorf("upstream status %d", resp.StatusCode),
		}
	default:
		return nil, &oddserr.PermanentError{
			Provider:   f.provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream rejected request: %s", truncate(body, 200)),
		}
	}
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// redact strips the query string before logging so API keys never land in
// log output.
func redact(fullURL string) string {
	u, err := url.Parse(fullURL)
	if err != nil {
		return fullURL
	}
	u.RawQuery = ""
	return u.String()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
