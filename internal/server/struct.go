package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/physrag-go/internal/attribution"
	"github.com/54b3r/physrag-go/internal/cache"
	"github.com/54b3r/physrag-go/internal/paragraphs"
	"github.com/54b3r/physrag-go/internal/rag"
	"github.com/54b3r/physrag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one question through the full pipeline.
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// History receives every answered question. Optional.
	History store.HistoryStore
	// Caches feeds GET /api/stats and the cache gauges. Optional.
	Caches *cache.Manager
	// Vectors reports the stored document count for GET /api/stats. Optional.
	Vectors rag.VectorStore
	// Attributor maps answers back to supporting paragraphs when a request
	// sets "attribute". Optional; requests asking for attribution are
	// answered without it when unset.
	Attributor Attributor
	// Paragraphs extracts the citation pool from retrieved sources.
	// Required when Attributor is set.
	Paragraphs *paragraphs.Extractor
	// MetricsRegistry receives all Prometheus metric registrations.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Answerer is the interface handleAsk calls to answer one question.
// *rag.Engine satisfies it; tests inject a fake.
type Answerer interface {
	// Answer runs the question through the retrieval pipeline.
	Answer(ctx context.Context, question string, topK int) (*rag.Response, error)
}

// Attributor maps a generated answer onto the paragraph pool extracted
// from its sources. *attribution.Mapper satisfies it; tests inject a fake.
type Attributor interface {
	Attribute(ctx context.Context, question, answer string, pool []paragraphs.Paragraph) *attribution.AttributedAnswer
}

// Server is the HTTP server that exposes the question answering pipeline.
type Server struct {
	// engine answers questions; *rag.Engine in production.
	engine Answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK overrides how many chunks to retrieve. 0 selects the default.
	TopK int `json:"top_k,omitempty"`
	// Attribute requests paragraph-level attribution of the answer.
	Attribute bool `json:"attribute,omitempty"`
}

// askResponse is the JSON body for POST /api/ask. The pipeline response is
// embedded so its fields serialize at the top level.
type askResponse struct {
	*rag.Response
	// Attribution is set only when the request asked for it and an
	// attribution mapper is configured.
	Attribution *attribution.AttributedAnswer `json:"attribution,omitempty"`
}

// statsResponse is the JSON body for GET /api/stats.
type statsResponse struct {
	// Caches maps cache name to its counters.
	Caches map[string]cache.Stats `json:"caches,omitempty"`
	// Documents is the number of points in the vector store, -1 when the
	// store could not be counted.
	Documents int64 `json:"documents"`
}
