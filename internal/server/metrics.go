// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/physrag-go/internal/cache"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the route pattern rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askRequestsTotal counts completed /api/ask requests, partitioned by
	// outcome: "ok", "degraded", or "error".
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each /api/ask
	// request through the full retrieve-and-generate pipeline.
	askDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physrag",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physrag",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests through the answer pipeline.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// cacheGauge describes one per-cache gauge exported from cache.Stats.
type cacheGauge struct {
	name  string
	help  string
	value func(cache.Stats) float64
}

// cacheGauges lists the stats fields exported per cache.
var cacheGauges = []cacheGauge{
	{"entries", "Current number of entries in the cache.", func(s cache.Stats) float64 { return float64(s.Entries) }},
	{"hits_total", "Cumulative cache hits.", func(s cache.Stats) float64 { return float64(s.Hits) }},
	{"misses_total", "Cumulative cache misses.", func(s cache.Stats) float64 { return float64(s.Misses) }},
	{"evictions_total", "Cumulative LRU evictions.", func(s cache.Stats) float64 { return float64(s.Evictions) }},
	{"hit_rate", "Hit rate since start (hits / lookups).", func(s cache.Stats) float64 { return s.HitRate }},
}

// registerCacheMetrics exports the cache manager's counters as gauges,
// one set per named cache, sampled at scrape time.
func registerCacheMetrics(reg prometheus.Registerer, m *cache.Manager) {
	factory := promauto.With(reg)

	for name := range m.StatsByName() {
		for _, g := range cacheGauges {
			factory.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   "physrag",
				Subsystem:   "cache",
				Name:        g.name,
				Help:        g.help,
				ConstLabels: prometheus.Labels{"cache": name},
			}, func() float64 {
				return g.value(m.StatsByName()[name])
			})
		}
	}
}
