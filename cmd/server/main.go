/*
main.go - Application entry point

PURPOSE:
  Starts the trade ledger server. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env, .env, config.env)
  2. Initialize logger
  3. Open SQLite snapshot store
  4. Configure cloud backup (optional)
  5. Load and sanitize the stored ledger
  6. Start debt reconciliation scheduler
  7. Start HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Wait for in-flight cloud backups
  5. Close database connection

ENVIRONMENT:
  See config/config.go. DB_PATH=":memory:" runs without a file.

SEE ALSO:
  - api/server.go: Router configuration
  - gateway/gateway.go: Persistence boundary
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/trade-ledger/api"
	"github.com/warp/trade-ledger/config"
	"github.com/warp/trade-ledger/gateway"
	"github.com/warp/trade-ledger/ledger"
	"github.com/warp/trade-ledger/logger"
	"github.com/warp/trade-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet.
		logger.New(logger.Config{Env: "development", Level: "info"}).Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	var opts []gateway.Option
	if cfg.Backup.Enabled {
		backup, err := gateway.NewS3Backup(context.Background(), cfg.Backup)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure cloud backup")
		}
		opts = append(opts, gateway.WithBackup(backup, cfg.Backup.Timeout))
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("cloud backup enabled")
	}

	svc := gateway.New(ledger.NewStore(), store, log.Zerolog(), opts...)
	if err := svc.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to load ledger")
	}

	handler := api.NewHandler(svc, log.Zerolog())

	scheduler := api.NewReconciliationScheduler(svc, log.Zerolog())
	scheduler.Enabled = cfg.Reconcile.Enabled
	scheduler.Interval = cfg.Reconcile.Interval
	handler.Scheduler = scheduler
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("db", cfg.DB.Path).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	scheduler.Stop()
	svc.Wait()

	log.Info().Msg("server stopped")
}
