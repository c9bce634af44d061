// Package main is the entry point for the rental lock access server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rental-lock-access/backend/internal/access"
	"github.com/rental-lock-access/backend/internal/api"
	"github.com/rental-lock-access/backend/internal/config"
	"github.com/rental-lock-access/backend/internal/provider"
	"github.com/rental-lock-access/backend/internal/scheduler"
	"github.com/rental-lock-access/backend/internal/storage"
	"github.com/rental-lock-access/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.ServerAddr); err != nil {
			log.Fatal().Err(err).Msg("health check failed")
		}
		os.Exit(0)
	}

	setupLogging(cfg.LogLevel)
	log.Info().Str("version", version).Msg("starting rental lock access server")

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("creating data directory")
	}
	db, err := storage.NewDB(cfg.DataDir + "/lock-access.db")
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}

	// WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)

	// Repositories
	lockRepo := storage.NewLockRepository(db)
	codeRepo := storage.NewAccessCodeRepository(db)
	activityRepo := storage.NewActivityRepository(db)

	// Provider adapters; the registry is immutable after this point.
	providers := provider.NewRegistry(
		provider.NewRESTAdapter("rest", cfg.ProviderTimeout),
		provider.NewMockAdapter("mock"),
	)

	svc := access.NewService(codeRepo, lockRepo, activityRepo, providers, broadcaster, access.Config{
		ProviderTimeout:     cfg.ProviderTimeout,
		LowBatteryThreshold: cfg.LowBatteryThreshold,
		CleanupMaxAttempts:  cfg.CleanupMaxAttempts,
		CodeLength:          cfg.CodeLength,
	})

	sched := scheduler.NewScheduler(svc, lockRepo, broadcaster, scheduler.Intervals{
		Expiry:     cfg.ExpiryInterval,
		Cleanup:    cfg.CleanupInterval,
		StatusSync: cfg.StatusSyncInterval,
	})
	sched.Start()

	router := api.NewRouter(db, hub, providers, svc, lockRepo, codeRepo, activityRepo)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// setupLogging configures the global zerolog logger.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(os.Stderr)
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	resp, err := http.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
