// Package server implements the HTTP API of the RAG chatbot: chat turns with
// per-session history, document upload and search, health and readiness
// probes, and Prometheus metrics. It is started by `ragchat serve`.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	defaultChatTimeout    = 2 * time.Minute
	defaultMaxUploadBytes = 10 << 20
	defaultSearchTopK     = 5
	defaultSearchMaxTopK  = 20

	// maxJSONBodyBytes caps JSON request bodies.
	maxJSONBodyBytes = 1 << 20
)

// New constructs a Server routing to the given domain services.
func New(deps *Deps, cfg *Config) (*Server, error) {
	if deps == nil || deps.Chat == nil || deps.Sessions == nil || deps.Index == nil || deps.Ingester == nil {
		return nil, fmt.Errorf("server: chat, sessions, index, and ingester must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		chat:     deps.Chat,
		sessions: deps.Sessions,
		index:    deps.Index,
		ingester: deps.Ingester,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		log.Warn("server: RAGCHAT_API_KEY is not set, API authentication is disabled")
	}

	rl, stop := newRateLimiter(rateLimiterConfig{
		rps:      cfg.RateLimit,
		burst:    cfg.RateBurst,
		rejected: s.metrics.rateLimitedTotal,
		log:      log,
	})
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// applyDefaults fills zero-valued Config fields.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast a chat turn so the reply can be written.
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = defaultSearchTopK
	}
	if cfg.SearchMaxTopK <= 0 {
		cfg.SearchMaxTopK = defaultSearchMaxTopK
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// routes builds the middleware-wrapped mux. Probes and /metrics are public;
// every other /api route requires the bearer token, and the routes that call
// a model provider are rate limited per IP.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	auth := newBearerAuth(s.cfg.APIKey, s.metrics.authFailuresTotal)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.wrap(h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return auth.wrap(rl.middleware(h))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/chat/message", limited(s.handleChatMessage))
	mux.Handle("GET /api/chat/history/{session_id}", protected(s.handleChatHistory))
	mux.Handle("DELETE /api/chat/session/{session_id}", protected(s.handleChatDelete))
	mux.Handle("GET /api/chat/sessions", protected(s.handleChatSessions))
	mux.Handle("GET /api/chat/test", limited(s.handleChatTest))

	mux.Handle("POST /api/documents/upload", limited(s.handleUpload))
	mux.Handle("GET /api/documents/search", limited(s.handleSearch))
	mux.Handle("GET /api/documents/stats", protected(s.handleStats))
	mux.Handle("DELETE /api/documents/clear", protected(s.handleClear))
	mux.Handle("GET /api/documents/supported-formats", protected(s.handleSupportedFormats))
	mux.Handle("GET /api/documents/fragments/{id}", protected(s.handleGetFragment))
	mux.Handle("DELETE /api/documents/fragments/{id}", protected(s.handleDeleteFragment))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	h = s.metrics.instrument(h)
	h = corsMiddleware(h)
	h = requestLogger(s.log, h)
	return h
}

// Handler returns the fully wrapped HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("server: encode response", slog.Any("error", err))
	}
}

// writeError writes a {"detail": msg} error body.
func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Detail: msg})
}
