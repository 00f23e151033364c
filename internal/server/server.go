// Package server exposes the guardian over a headless HTTP + WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marginguard/internal/domain"
	"marginguard/internal/server/handler"
	"marginguard/internal/server/middleware"
	"marginguard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// TriggerLimit bounds POST /api/rebalance per client IP per minute.
	// Zero falls back to 10.
	TriggerLimit int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Margin    *handler.MarginHandler
	Policy    *handler.PolicyHandler
	Rebalance *handler.RebalanceHandler
	Audit     *handler.AuditHandler
}

// Server is the HTTP + WebSocket API for the margin guardian.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (auth, logging, CORS) wired. limiter may be nil, in which case the
// trigger endpoint runs unthrottled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/margin", handlers.Margin.GetMargin)

	mux.HandleFunc("GET /api/policy", handlers.Policy.GetPolicy)
	mux.HandleFunc("PUT /api/policy/threshold", handlers.Policy.UpdateThreshold)
	mux.HandleFunc("POST /api/policy/transfer", handlers.Policy.TransferOwnership)

	// The trigger endpoint is open to any caller, so it alone sits behind
	// the rate limiter.
	var trigger http.Handler = http.HandlerFunc(handlers.Rebalance.Trigger)
	if limiter != nil {
		limit := cfg.TriggerLimit
		if limit <= 0 {
			limit = 10
		}
		trigger = middleware.RateLimit(limiter, limit, time.Minute)(trigger)
	}
	mux.Handle("POST /api/rebalance", trigger)

	mux.HandleFunc("GET /api/rebalances", handlers.Rebalance.ListRebalances)
	mux.HandleFunc("GET /api/rebalances/{id}", handlers.Rebalance.GetRebalance)

	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	mux.HandleFunc("POST /api/archive", handlers.Audit.Archive)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server fails
// or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
