// Package api exposes the filing index and research chat over HTTP.
//
// Endpoints:
//
//	POST   /api/v1/filings/{ticker}/index   trigger indexing (202)
//	GET    /api/v1/filings/{ticker}/status  poll index status
//	DELETE /api/v1/filings/{ticker}/index   remove a ticker's index
//	POST   /api/v1/chat                     research chat (SSE)
//	GET    /health                          liveness probe
//	GET    /ready                           readiness probe
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: recovery, request ID, logging, CORS
//   - ratelimit.go: per-IP token bucket
//   - indexing.go: index endpoints
//   - chat.go: SSE chat endpoint
//   - health.go: probes
//   - response.go: JSON helpers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Server timeouts. WriteTimeout is generous because chat responses
// stream over long-lived connections.
const (
	ShutdownTimeout   = 10 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	ReadTimeout       = 30 * time.Second
	WriteTimeout      = 5 * time.Minute
	IdleTimeout       = 120 * time.Second
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
	RateLimit   float64 // requests per second per client IP
	RateBurst   int
}

// Server is the HTTP front end.
type Server struct {
	mux    *http.ServeMux
	cfg    ServerConfig
	logger *slog.Logger
}

// NewServer creates a Server with all routes registered. The pool is
// used by the readiness probe only.
func NewServer(cfg ServerConfig, index IndexService, researcher Researcher,
	pool *pgxpool.Pool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	NewHealthHandler(pool, logger).RegisterRoutes(mux)
	NewIndexHandler(index, logger).RegisterRoutes(mux)
	NewChatHandler(researcher, index, logger).RegisterRoutes(mux)

	return &Server{mux: mux, cfg: cfg, logger: logger}
}

// Handler returns the routed handler with the middleware stack applied.
// Order: recovery, request ID, logging, CORS, rate limit.
func (s *Server) Handler() http.Handler {
	rl := newRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		corsMiddleware(s.cfg.CORSOrigins),
		rateLimitMiddleware(rl, s.logger),
	)
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
