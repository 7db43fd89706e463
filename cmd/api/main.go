// Package main is the entry point for the operator API server.
//
// The API gives operations staff read access to the attempt ledger and
// exposes the booking-time suppression hook to the appointment layer. It
// runs as a standard HTTP server with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"remindpoint/internal/api/handlers"
	"remindpoint/internal/config"
	"remindpoint/internal/core"
	"remindpoint/internal/db"
	"remindpoint/internal/delivery"
	"remindpoint/internal/ledger"
	"remindpoint/internal/scheduler"
	"remindpoint/internal/types"
	"remindpoint/internal/window"
)

// shutdownTimeout bounds graceful connection draining.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("operator API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	appLogger := types.NewSlogLogger(logger)
	attemptRepo := db.NewAttemptRepository(pool)
	appointmentRepo := db.NewAppointmentRepository(pool)
	attemptLedger := ledger.New(attemptRepo, cfg.Ledger, types.RealClock{}, appLogger)

	reminders := scheduler.NewReminders(scheduler.RemindersConfig{
		Store:        appointmentRepo,
		Ledger:       attemptLedger,
		Sender:       delivery.NewClient(cfg.SMS, appLogger),
		Windows:      window.NewSet(cfg.Windows),
		Quiet:        cfg.Quiet,
		PollInterval: cfg.Windows.PollInterval,
		Logger:       appLogger,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	attemptsHandler := handlers.NewAttemptsHandler(attemptRepo, types.RealClock{}, logger)
	bookingsHandler := handlers.NewBookingsHandler(reminders, logger)
	srv.V1RouteRegistrars = []core.RouteRegistrar{
		func(r chi.Router) { attemptsHandler.RegisterRoutes(r) },
		func(r chi.Router) { bookingsHandler.RegisterRoutes(r) },
	}
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger builds the process-wide JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
