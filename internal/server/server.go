// Package server implements the HTTP API that exposes Junu's answer
// generator, the speech pipeline and index maintenance, and serves the
// built web UI. The server is started by the `junu serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/speech"
)

// defaultCORSOrigin is the Vite dev server.
const defaultCORSOrigin = "http://localhost:5173"

// New constructs a Server from the provided dependencies and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Chat == nil {
		return nil, errors.New("server: chat service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Minute
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
	if cfg.MaxAudioBytes == 0 {
		cfg.MaxAudioBytes = 25 << 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{defaultCORSOrigin}
	}
	if cfg.Language == "" {
		cfg.Language = speech.DefaultLanguage
	}
	if cfg.Voice == "" {
		cfg.Voice = speech.DefaultVoice
	}
	if cfg.MetricsRegistry == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		cfg.MetricsRegistry = reg
	}
	if cfg.MetricsGatherer == nil {
		if g, ok := cfg.MetricsRegistry.(prometheus.Gatherer); ok {
			cfg.MetricsGatherer = g
		} else {
			cfg.MetricsGatherer = prometheus.DefaultGatherer
		}
	}

	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.MetricsRegistry)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("server: JUNU_API_KEY not set, API routes are unauthenticated")
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:       deps,
		cfg:        cfg,
		log:        log,
		pingers:    cfg.Pingers,
		metrics:    cfg.Metrics,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	rl, stop := newRateLimiter(limiterConfig{
		RPS:        cfg.RateLimit,
		Burst:      cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
		Metrics:    cfg.Metrics,
	}, log)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// routes builds the handler chain. Outermost first: CORS, request logging,
// metrics; then per route auth and rate limiting.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(s.cfg.APIKey, h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(s.cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /chat", limited(s.handleChat))
	mux.Handle("POST /stt", limited(s.handleSTT))
	mux.Handle("POST /tts", limited(s.handleTTS))
	mux.Handle("POST /voice", limited(s.handleVoice))
	mux.Handle("POST /ingest", protect(s.handleIngest))
	mux.Handle("GET /ingest", protect(s.handleIngestStatus))
	mux.Handle("DELETE /sessions/{id}", protect(s.handleClearSession))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	if s.deps.AudioFiles != nil {
		mux.Handle("GET /audio/", s.deps.AudioFiles)
	}
	if s.cfg.StaticDir != "" {
		if info, err := os.Stat(s.cfg.StaticDir); err == nil && info.IsDir() {
			mux.Handle("GET /", spaHandler(s.cfg.StaticDir))
		} else {
			s.log.Warn("server: static dir not found, UI disabled", slog.String("dir", s.cfg.StaticDir))
		}
	}

	var h http.Handler = mux
	h = s.metrics.middleware(h)
	h = requestLogger(s.log, h)
	h = corsMiddleware(s.cfg.CORSOrigins, h)
	return h
}

// Handler returns the full middleware chain. Used by tests and embedders.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown and waits for any
// background ingestion to stop.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.close()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.close()
		if err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// close stops background work owned by the server.
func (s *Server) close() {
	s.cancelBase()
	s.bg.Wait()
	if s.stopRL != nil {
		s.stopRL()
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
