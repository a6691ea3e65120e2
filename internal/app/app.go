// Package app provides the top-level application lifecycle management for
// the agent runner. It wires together every dependency (store, chain
// client, decision engine, scheduler, HTTP control plane) and runs the
// scheduler and server concurrently until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/agentrunner/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, then runs the scheduler and, if enabled, the
// HTTP control plane concurrently. The first one to fail cancels the other;
// Run returns once both legs have stopped. It registers the wiring cleanup
// with the App; Close runs it.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application", slog.String("log_level", a.cfg.LogLevel))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Scheduler.Run(gctx)
	})

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
