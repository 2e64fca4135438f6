// Package server assembles the HTTP + WebSocket API for the resolution
// engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/server/handler"
	"github.com/resolvd/resolvd/internal/server/middleware"
	"github.com/resolvd/resolvd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow; 0 disables the
	// rate limit middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Pools       *handler.PoolHandler
	Stakes      *handler.StakeHandler
	Settlements *handler.SettlementHandler
}

// Server is the HTTP + WebSocket API server for the resolution engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered, wiring up the
// middleware chain (rate limit, auth, logging, CORS) and the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Pool lifecycle.
	mux.HandleFunc("POST /api/pools", handlers.Pools.CreatePool)
	mux.HandleFunc("GET /api/pools", handlers.Pools.ListPools)
	mux.HandleFunc("GET /api/pools/{id}", handlers.Pools.GetPool)
	mux.HandleFunc("POST /api/pools/{id}/lock", handlers.Pools.Lock)
	mux.HandleFunc("POST /api/pools/{id}/resolve", handlers.Pools.Resolve)
	mux.HandleFunc("POST /api/pools/{id}/cancel", handlers.Pools.Cancel)

	// Staking.
	mux.HandleFunc("POST /api/pools/{id}/stakes", handlers.Stakes.PlaceStake)
	mux.HandleFunc("POST /api/pools/{id}/stakes/withdraw", handlers.Stakes.WithdrawStake)
	mux.HandleFunc("GET /api/pools/{id}/stakes", handlers.Stakes.ListStakes)

	// Settlement.
	mux.HandleFunc("POST /api/pools/{id}/claims", handlers.Settlements.Claim)
	mux.HandleFunc("POST /api/pools/{id}/refunds", handlers.Settlements.Refund)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Pools.ListAudit)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
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
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
