/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the store (sqlite or postgres)
  3. Seed default leave types (SEED_DEFAULTS)
  4. Create API handler and router
  5. Start the accrual scheduler (ACCRUAL_SCHEDULER_ENABLED)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the accrual scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run against postgres
  DB_DRIVER=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - store/store.go: Backend selection
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store"
)

const appName = "leave-ledger"

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.App.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.SQLitePath, "SQLite database path")
	flag.Parse()
	cfg.App.Port = *port
	cfg.Database.SQLitePath = *dbPath

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := api.NewLogger(os.Stdout, cfg.SlogLevel(), appName, cfg.App.Env)
	slog.SetDefault(logger)

	// Initialize store
	backend, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("close store", slog.Any("error", err))
		}
	}()

	ctx := context.Background()
	if cfg.App.SeedDefaults {
		res, err := leave.Seed(ctx, backend)
		if err != nil {
			return fmt.Errorf("seed defaults: %w", err)
		}
		logger.Info("seed complete",
			slog.Int("leave_types_created", res.LeaveTypesCreated),
			slog.Bool("config_created", res.ConfigCreated))
	}

	handler := api.NewHandler(backend, api.NewTokenAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer), logger, cfg.Auth.CronSecret)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSAllow,
		LogLevel:       cfg.SlogLevel(),
	})

	scheduler := api.NewAccrualScheduler(handler.Accrual, logger)
	scheduler.CheckInterval = cfg.Accrual.Interval
	scheduler.Enabled = cfg.Accrual.SchedulerEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.Int("port", cfg.App.Port),
			slog.String("db_driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			scheduler.Stop()
			return fmt.Errorf("listen: %w", err)
		}
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
