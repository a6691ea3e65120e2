package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/alanyoungcy/agentrunner/internal/server/handler"
	"github.com/alanyoungcy/agentrunner/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // static-key auth; empty disables it
	JWTSecret   string // preferred over APIKey when both are set

	RateLimitPerMinute int // 0 disables rate limiting
}

// Dependencies are the store/cache collaborators the control plane's
// handlers read and write.
type Dependencies struct {
	Autopilot domain.AutopilotStore
	Strategy  domain.StrategyStore
	Runs      domain.RunStore
	Triggers  domain.TriggerBus
	RateLimit domain.RateLimiter

	// LastLoopAt reports the scheduler's tick-loop liveness; nil in a
	// server-only deployment with no local scheduler.
	LastLoopAt func() time.Time
}

// Server is the thin HTTP control plane: health, manual autopilot/strategy
// administration, and the immediate-trigger endpoint the scheduler's
// triggerLoop consumes from internal/cache/redis's TriggerBus.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a Server with every route registered and the middleware chain
// (rate limit -> auth -> logging -> CORS) applied.
func New(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	health := handler.NewHealthHandler(logger, deps.LastLoopAt, 2*time.Minute)
	trigger := handler.NewTriggerHandler(deps.Triggers, logger)
	autopilot := handler.NewAutopilotHandler(deps.Autopilot, logger)
	strategy := handler.NewStrategyHandler(deps.Strategy, logger)
	runs := handler.NewRunHandler(deps.Runs)

	mux.HandleFunc("GET /api/health", health.HealthCheck)

	mux.HandleFunc("GET /api/autopilot", autopilot.List)
	mux.HandleFunc("GET /api/autopilot/{tokenId}", autopilot.Get)
	mux.HandleFunc("POST /api/autopilot/{tokenId}/disable", autopilot.Disable)

	mux.HandleFunc("GET /api/strategy", strategy.List)
	mux.HandleFunc("GET /api/strategy/{tokenId}", strategy.Get)
	mux.HandleFunc("PUT /api/strategy/{tokenId}", strategy.Upsert)
	mux.HandleFunc("PUT /api/strategy/{tokenId}/goal", strategy.SetGoal)
	mux.HandleFunc("DELETE /api/strategy/{tokenId}/goal", strategy.ClearGoal)

	mux.HandleFunc("GET /api/runs/{tokenId}", runs.List)

	mux.HandleFunc("POST /api/trigger/{tokenId}", trigger.Trigger)

	var h http.Handler = mux

	if deps.RateLimit != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(deps.RateLimit, cfg.RateLimitPerMinute, time.Minute)(h)
	}

	switch {
	case cfg.JWTSecret != "":
		h = middleware.JWTAuth(cfg.JWTSecret)(h)
	case cfg.APIKey != "":
		h = middleware.Auth(cfg.APIKey)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully. It is built to run as one errgroup.Go leg alongside the
// scheduler, matching internal/app's wiring.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server: shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}
