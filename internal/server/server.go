// Package server is the headless HTTP API for operating the engine: status,
// detected opportunities, execution history, live risk limits, blacklists,
// and the emergency stop.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcalloway/dexarb/internal/domain"
	"github.com/jmcalloway/dexarb/internal/server/handler"
	"github.com/jmcalloway/dexarb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit bounds requests per client IP per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers. Nil entries
// leave their routes unregistered, so scan-only mode can skip controls.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Opportunities *handler.OpportunityHandler
	Executions    *handler.ExecutionHandler
	Risk          *handler.RiskHandler
	Control       *handler.ControlHandler
}

// Server wraps the http.Server with route registration and middleware.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil;
// when set together with cfg.RateLimit it throttles per client IP.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Opportunities != nil {
		mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListRecent)
		mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.Get)
	}

	if handlers.Executions != nil {
		mux.HandleFunc("GET /api/executions", handlers.Executions.ListRecent)
		mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.Get)
	}

	if handlers.Risk != nil {
		mux.HandleFunc("GET /api/risk/limits", handlers.Risk.GetLimits)
		mux.HandleFunc("PATCH /api/risk/limits", handlers.Risk.UpdateLimits)
		mux.HandleFunc("GET /api/risk/blacklist", handlers.Risk.GetBlacklist)
		mux.HandleFunc("GET /api/risk/blacklist/audit", handlers.Risk.ListAudit)
		mux.HandleFunc("POST /api/risk/blacklist/assets", handlers.Risk.AddAsset)
		mux.HandleFunc("DELETE /api/risk/blacklist/assets/{address}", handlers.Risk.RemoveAsset)
		mux.HandleFunc("POST /api/risk/blacklist/venues", handlers.Risk.AddVenue)
		mux.HandleFunc("DELETE /api/risk/blacklist/venues/{name}", handlers.Risk.RemoveVenue)
	}

	if handlers.Control != nil {
		mux.HandleFunc("POST /api/control/stop", handlers.Control.Stop)
		mux.HandleFunc("POST /api/control/resume", handlers.Control.Resume)
		mux.HandleFunc("POST /api/control/trading", handlers.Control.SetTrading)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
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
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
