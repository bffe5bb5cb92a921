package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/prontofix/realtime-broker/internal/adapters/primary/http"
	mw "github.com/prontofix/realtime-broker/internal/adapters/primary/http/middleware"
	"github.com/prontofix/realtime-broker/internal/adapters/primary/websocket"
	"github.com/prontofix/realtime-broker/internal/config"
	"github.com/prontofix/realtime-broker/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting broker",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize the Hub (broker core)
	hub := websocket.NewHub(logger)

	// 4. Dependency Injection
	errorHandler := httpAdapter.NewErrorHandler(logger)
	emitHandler := httpAdapter.NewEmitHandler(hub, errorHandler, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(hub, cfg.App.Version)

	// 5. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", mw.RequestIDHeader},
	}))

	// Liveness probe and health stats
	r.Get("/", healthHandler.HandleRoot)
	r.Get("/health", healthHandler.HandleHealth)

	// WebSocket endpoint
	r.Get("/ws", wsHandler.ServeHTTP)

	// Ingestion endpoints, rate limited per producer IP
	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			limiter := mw.NewRateLimiter(mw.RateLimiterConfig{
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				BurstSize:         cfg.RateLimit.BurstSize,
				CleanupInterval:   mw.DefaultRateLimiterConfig().CleanupInterval,
				TTL:               mw.DefaultRateLimiterConfig().TTL,
			})
			r.Use(limiter.Middleware)
		}
		emitHandler.RegisterRoutes(r)
	})

	// 6. Run the hub and the server under one group
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("broker exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
