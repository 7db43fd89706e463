// Package main is the entrypoint for the Alert Monitor Lambda function.
//
// The monitor runs on an EventBridge schedule, a few minutes offset from the
// reminder poller. Each invocation runs four detectors over the trailing
// lookback window (delivery failure spike, precondition failure spike,
// silent scheduler, cancellation-notice gap) and routes anything raised
// through the deduplicating alert dispatcher to chat webhooks.
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

	"remindpoint/internal/alerts"
	"remindpoint/internal/config"
	"remindpoint/internal/db"
	"remindpoint/internal/metrics"
	"remindpoint/internal/scheduler"
	"remindpoint/internal/types"
	"remindpoint/internal/window"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("alert monitor initializing (cold start)")

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

	dispatcher := alerts.NewDispatcher(alerts.DispatcherConfig{
		Store:              db.NewAlertRepository(pool),
		Channel:            alerts.NewChatWebhook(cfg.Alerts.WebhookTimeout, appLogger),
		Suppression:        cfg.Alerts.SuppressionWindow,
		DefaultWebhookURL:  cfg.Alerts.DefaultWebhookURL,
		DefaultMinSeverity: types.Severity(cfg.Alerts.DefaultMinSeverity),
		Logger:             appLogger,
	})

	monitor := scheduler.NewMonitor(scheduler.MonitorConfig{
		Appointments: db.NewAppointmentRepository(pool),
		Attempts:     db.NewAttemptRepository(pool),
		Sink:         dispatcher,
		Windows:      window.NewSet(cfg.Windows),
		Alerts:       cfg.Alerts,
		Quiet:        cfg.Quiet,
		Metrics:      schedulerMetrics,
		Logger:       appLogger,
	})

	logger.Info("alert monitor initialized",
		"environment", cfg.Environment,
		"lookback", cfg.Alerts.LookbackWindow.String(),
		"suppression", cfg.Alerts.SuppressionWindow.String(),
	)

	lambda.Start(newHandler(monitor, logger))
}

// newHandler wraps the monitor tick for the Lambda runtime.
func newHandler(monitor *scheduler.Monitor, logger *slog.Logger) func(ctx context.Context) (scheduler.MonitorResult, error) {
	return func(ctx context.Context) (scheduler.MonitorResult, error) {
		result, err := monitor.Tick(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "monitor tick failed", "error", err)
			return result, fmt.Errorf("monitor tick failed: %w", err)
		}

		logger.InfoContext(ctx, "monitor tick finished",
			"raised", result.Raised,
			"suppressed", result.Suppressed,
			"delivered", result.Delivered,
		)
		return result, nil
	}
}
