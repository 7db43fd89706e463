// Package main is the entrypoint for the Reminder Poller Lambda function.
//
// The poller runs on an EventBridge schedule. Each invocation is one tick:
// it queries the appointment store for appointments inside the eligibility
// windows, applies policy (quiet hours, already-sent and booking-confirmation
// suppression), sends SMS reminders through the delivery client, and writes
// every outcome to the attempt ledger.
//
// This file handles dependency wiring (cold start) and delegates all business
// logic to internal/scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"remindpoint/internal/config"
	"remindpoint/internal/db"
	"remindpoint/internal/delivery"
	"remindpoint/internal/ledger"
	"remindpoint/internal/metrics"
	"remindpoint/internal/scheduler"
	"remindpoint/internal/types"
	"remindpoint/internal/window"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("reminder poller initializing (cold start)")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	appLogger := types.NewSlogLogger(logger)

	var schedulerMetrics scheduler.Metrics = scheduler.NopMetrics{}
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		schedulerMetrics = metrics.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Metrics.Namespace,
			appLogger,
		)
	}

	attemptRepo := db.NewAttemptRepository(pool)
	appointmentRepo := db.NewAppointmentRepository(pool)
	attemptLedger := ledger.New(attemptRepo, cfg.Ledger, types.RealClock{}, appLogger)
	sender := delivery.NewClient(cfg.SMS, appLogger)

	reminders := scheduler.NewReminders(scheduler.RemindersConfig{
		Store:        appointmentRepo,
		Ledger:       attemptLedger,
		Sender:       sender,
		Windows:      window.NewSet(cfg.Windows),
		Quiet:        cfg.Quiet,
		PollInterval: cfg.Windows.PollInterval,
		Metrics:      schedulerMetrics,
		Logger:       appLogger,
	})

	logger.Info("reminder poller initialized",
		"environment", cfg.Environment,
		"poll_interval", cfg.Windows.PollInterval.String(),
	)

	lambda.Start(newHandler(reminders, logger))
}

// newHandler wraps the scheduler tick with logging and error handling for
// the Lambda runtime.
func newHandler(reminders *scheduler.Reminders, logger *slog.Logger) func(ctx context.Context) (scheduler.TickResult, error) {
	return func(ctx context.Context) (scheduler.TickResult, error) {
		result, err := reminders.Tick(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "reminder tick failed", "error", err)
			return result, fmt.Errorf("reminder tick failed: %w", err)
		}

		logger.InfoContext(ctx, "reminder tick finished",
			"evaluated", result.Evaluated,
			"sent", result.Sent,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
		return result, nil
	}
}
