// Package metrics holds the Prometheus collectors shared across the engine,
// exposed on /metrics by cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's collectors so components can be handed an
// explicit instance instead of writing to package-level globals.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	NormalizeErrors  *prometheus.CounterVec
}

// New registers the engine's collectors against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odds_upstream_requests_total",
			Help: "Upstream odds API calls by provider and HTTP status class.",
		}, []string{"provider", "status"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odds_upstream_latency_seconds",
			Help:    "Upstream odds API call latency by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "odds_cache_hits_total",
			Help: "Aggregation cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "odds_cache_misses_total",
			Help: "Aggregation cache misses.",
		}),
		NormalizeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odds_normalization_failures_total",
			Help: "Payloads discarded because they violated a normalization invariant.",
		}, []string{"provider"}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
