package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
)

// shutdownGrace bounds how long in-flight TWAP slices may run after the
// process is asked to stop.
const shutdownGrace = 30 * time.Second

// ArbitrageMode evaluates monitored pairs and serves the pair API.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	if deps.Arb == nil {
		return fmt.Errorf("arbitrage mode: engine disabled in config")
	}
	a.logger.InfoContext(ctx, "starting arbitrage mode",
		slog.Duration("period", a.cfg.Arbitrage.Period.Duration),
		slog.Bool("auto_start", a.cfg.Arbitrage.AutoStart),
	)
	g, ctx := errgroup.WithContext(ctx)
	a.startCommon(ctx, g, deps)
	if err := a.startArbitrage(ctx, g, deps); err != nil {
		return fmt.Errorf("arbitrage mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// TwapMode executes TWAP plans and serves the plan API.
func (a *App) TwapMode(ctx context.Context, deps *Dependencies) error {
	if deps.Twap == nil {
		return fmt.Errorf("twap mode: engine disabled in config")
	}
	a.logger.InfoContext(ctx, "starting twap mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startCommon(ctx, g, deps)
	if err := a.startTwap(ctx, g, deps); err != nil {
		return fmt.Errorf("twap mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs both engines against the shared executor and audit log.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("arbitrage", deps.Arb != nil),
		slog.Bool("twap", deps.Twap != nil),
	)
	g, ctx := errgroup.WithContext(ctx)
	a.startCommon(ctx, g, deps)
	if deps.Arb != nil {
		if err := a.startArbitrage(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}
	if deps.Twap != nil {
		if err := a.startTwap(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MonitorMode collects quotes and serves read-only endpoints without placing
// orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Bool("feed", deps.Feed != nil),
	)
	g, ctx := errgroup.WithContext(ctx)
	a.startCommon(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startCommon launches the components every mode shares: the push feed,
// the websocket hub and the audit archiver. The group always holds one
// goroutine bound to ctx so a mode never returns before shutdown.
func (a *App) startCommon(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	if deps.Feed != nil {
		g.Go(func() error {
			return deps.Feed.Run(ctx)
		})
	}
	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}
}

// startArbitrage restores persisted pairs and runs the evaluation loop.
func (a *App) startArbitrage(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if err := deps.Arb.Restore(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		return deps.Arb.Run(ctx, a.cfg.Arbitrage.AutoStart)
	})
	return nil
}

// startTwap restores persisted plans and stops every scheduler on shutdown.
// Plans that were running come back paused.
func (a *App) startTwap(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	deps.Twap.Bind(ctx)
	if err := deps.Twap.Restore(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := deps.Twap.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("twap shutdown incomplete", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
	return nil
}

// startHTTPServer adds the API server to g when enabled. Routes for engines
// the mode does not run stay unregistered.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(deps.Checks, a.logger),
		Executions: handler.NewExecutionHandler(deps.Audit, a.logger),
		Quotes:     handler.NewQuoteHandler(deps.Aggregator, a.logger),
	}
	if deps.Arb != nil {
		handlers.Arb = handler.NewArbHandler(deps.Arb, a.logger)
	}
	if deps.Twap != nil {
		handlers.Twap = handler.NewTwapHandler(deps.Twap, a.logger)
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if deps.RateLimiter != nil {
		srvCfg.Limiter = deps.RateLimiter
		srvCfg.RateLimitPerMin = a.cfg.Server.RateLimitPerMin
	}

	srv := server.NewServer(srvCfg, handlers, deps.Hub, a.logger)
	g.Go(func() error {
		return srv.Run(ctx)
	})
}
