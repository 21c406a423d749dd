// Package server implements the HTTP server that exposes the question
// answering pipeline via a REST API, plus health, readiness, stats, and
// Prometheus metrics endpoints.
// The server is started by the `physrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/physrag-go/internal/attribution"
	"github.com/54b3r/physrag-go/internal/logging"
	"github.com/54b3r/physrag-go/internal/paragraphs"
	"github.com/54b3r/physrag-go/internal/rag"
	"github.com/54b3r/physrag-go/internal/store"
)

// New constructs a Server from the provided engine and config.
func New(engine Answerer, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full retrieve-and-generate round trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 2 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:  engine,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}
	if cfg.Caches != nil {
		registerCacheMetrics(cfg.MetricsRegistry, cfg.Caches)
	}
	if cfg.APIKey == "" {
		s.log.Warn("server: PHYSRAG_API_KEY not set — API authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	protected := func(h http.HandlerFunc) http.Handler {
		return rl.middleware(authMiddleware(cfg.APIKey, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", protected(s.handleAsk))
	mux.Handle("GET /api/stats", protected(s.handleStats))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask: it runs one question through the
// pipeline and returns the full response, sources included. Degraded
// answers (no sources, generation failure) are still 200s — only
// transport-level failures produce error statuses.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.engine.Answer(ctx, req.Question, req.TopK)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case resp.Error != "":
		outcome = "degraded"
	}
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("ask failed", slog.Any("error", err))
		http.Error(w, "retrieval backend unavailable", http.StatusBadGateway)
		return
	}

	s.recordHistory(r.Context(), resp.Question, resp.Answer, len(resp.Sources), resp.CacheHit)

	out := askResponse{Response: resp}
	if req.Attribute && resp.Error == "" {
		out.Attribution = s.attribute(ctx, resp)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Error("ask encode error", slog.Any("error", err))
	}
}

// attribute builds the paragraph pool from the response sources and maps
// the answer onto it. Returns nil when no attribution mapper is configured.
func (s *Server) attribute(ctx context.Context, resp *rag.Response) *attribution.AttributedAnswer {
	if s.cfg.Attributor == nil || s.cfg.Paragraphs == nil {
		return nil
	}

	srcs := make([]paragraphs.Source, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		srcs = append(srcs, paragraphs.Source{
			Text:         src.Content,
			ChunkIndex:   src.ChunkIndex,
			DocumentName: src.DocumentName,
		})
	}
	pool := s.cfg.Paragraphs.ExtractFromSources(srcs)
	if len(pool) == 0 {
		return nil
	}
	return s.cfg.Attributor.Attribute(ctx, resp.Question, resp.Answer, pool)
}

// recordHistory persists an answered question. History failures are logged
// and never affect the response.
func (s *Server) recordHistory(ctx context.Context, question, answer string, sources int, cacheHit bool) {
	if s.cfg.History == nil {
		return
	}
	err := s.cfg.History.Record(ctx, store.Entry{
		Question:    question,
		Answer:      answer,
		SourceCount: sources,
		CacheHit:    cacheHit,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("history record failed", slog.Any("error", err))
	}
}

// handleStats handles GET /api/stats with cache counters and the stored
// document count.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := statsResponse{Documents: -1}
	if s.cfg.Caches != nil {
		resp.Caches = s.cfg.Caches.StatsByName()
	}
	if s.cfg.Vectors != nil {
		if n, err := s.cfg.Vectors.Count(r.Context()); err == nil {
			resp.Documents = int64(n)
		} else {
			log.Warn("stats: vector count failed", slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("stats encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// instrument wraps the mux with the HTTP request counter and latency
// histogram, labelled by route pattern rather than raw path.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, pattern, fmt.Sprintf("%d", rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
	})
}
