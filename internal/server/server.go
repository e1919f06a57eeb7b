// Package server is the HTTP registration API and websocket event relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/middleware"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey enables authentication when set.
	APIKey string
	// Limiter and RateLimitPerMin enable per-IP request limiting.
	Limiter         domain.RateLimiter
	RateLimitPerMin int
}

// Handlers groups the route handlers. Nil handlers leave their routes
// unregistered, e.g. the twap routes in arbitrage-only mode.
type Handlers struct {
	Health     *handler.HealthHandler
	Arb        *handler.ArbHandler
	Twap       *handler.TwapHandler
	Executions *handler.ExecutionHandler
	Quotes     *handler.QuoteHandler
}

// Server is the headless HTTP + websocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes and wraps them in the middleware chain.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger.With(slog.String("component", "server"))}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if h := handlers.Arb; h != nil {
		mux.HandleFunc("GET /api/pairs", h.ListPairs)
		mux.HandleFunc("POST /api/pairs", h.UpsertPair)
		mux.HandleFunc("GET /api/pairs/{id}", h.GetPair)
		mux.HandleFunc("DELETE /api/pairs/{id}", h.DeletePair)
		mux.HandleFunc("POST /api/arbitrage/start", h.Start)
		mux.HandleFunc("POST /api/arbitrage/stop", h.Stop)
		mux.HandleFunc("GET /api/arbitrage/status", h.Status)
	}

	if h := handlers.Twap; h != nil {
		mux.HandleFunc("GET /api/twap", h.ListPlans)
		mux.HandleFunc("POST /api/twap", h.CreatePlan)
		mux.HandleFunc("GET /api/twap/{id}", h.GetPlan)
		mux.HandleFunc("POST /api/twap/{id}/{action}", h.Action)
	}

	if h := handlers.Executions; h != nil {
		mux.HandleFunc("GET /api/executions", h.List)
		mux.HandleFunc("GET /api/executions/summary", h.Summary)
	}

	if h := handlers.Quotes; h != nil {
		mux.HandleFunc("GET /api/quotes", h.Get)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if cfg.Limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}
