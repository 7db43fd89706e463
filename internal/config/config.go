// Package config defines the global configuration structure for the
// remindpoint pipeline. Configuration is loaded once at process
// initialization (Lambda cold start) and is immutable thereafter.
//
// Values come from the OS environment with an optional .env file for local
// development. Any missing required value or invalid format fails fast at
// startup; a half-configured reminder pipeline silently skips appointments,
// which is exactly the defect class this layout exists to prevent.
package config

import "time"

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Components receive only the
// specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"remindpoint"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database DatabaseConfig
	SMS      SMSConfig
	Windows  WindowConfig
	Quiet    QuietHoursConfig
	Ledger   LedgerConfig
	Alerts   AlertConfig
	Server   ServerConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL" validate:"required,url"`
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// SMSConfig holds the outbound SMS gateway settings consumed by the
// Delivery Client. An empty EndpointURL is a recognized state: the client
// reports ENDPOINT_NOT_CONFIGURED instead of attempting a send.
type SMSConfig struct {
	EndpointURL string        `envconfig:"SMS_ENDPOINT_URL" validate:"omitempty,url"`
	Timeout     time.Duration `envconfig:"SMS_TIMEOUT" default:"10s"`
	MaxRetries  int           `envconfig:"SMS_MAX_RETRIES" default:"3" validate:"min=0,max=10"`
	BaseDelay   time.Duration `envconfig:"SMS_RETRY_BASE_DELAY" default:"500ms"`
	UserAgent   string        `envconfig:"SMS_USER_AGENT" default:"Remindpoint-SMS/1.0"`
}

// WindowConfig holds the eligibility window bounds, in hours before the
// appointment, plus the poll cadence they are paired with.
//
// Window width and poll cadence are one configuration decision: each window
// must be wider than the maximum gap between poll ticks plus the longest
// contiguous quiet-hours span, or eligible appointments are silently
// skipped. Validate() enforces this coupling at startup.
//
// Defaults are the wide tolerant policy paired with an hourly cadence.
type WindowConfig struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1h"`

	DayBeforeStartHours  float64 `envconfig:"WINDOW_24H_START_HOURS" default:"12"`
	DayBeforeEndHours    float64 `envconfig:"WINDOW_24H_END_HOURS" default:"25"`
	HourBeforeStartHours float64 `envconfig:"WINDOW_1H_START_HOURS" default:"0.5"`
	HourBeforeEndHours   float64 `envconfig:"WINDOW_1H_END_HOURS" default:"2"`
}

// QuietHoursConfig defines the daily range during which outbound reminders
// are deferred (never abandoned), evaluated in the tenant reference zone.
// StartHour/EndHour are hours of day, 0-23; the range may wrap midnight.
type QuietHoursConfig struct {
	StartHour int    `envconfig:"QUIET_HOURS_START" default:"22"`
	EndHour   int    `envconfig:"QUIET_HOURS_END" default:"5"`
	Timezone  string `envconfig:"TENANT_TIMEZONE" default:"UTC"`
}

// LedgerConfig holds the noisy-status suppression windows. Re-recording an
// identical (appointment, type, status, reason) row younger than the window
// for its status is suppressed to keep the ledger readable.
type LedgerConfig struct {
	QuietHoursDedupe   time.Duration `envconfig:"LEDGER_DEDUPE_QUIET_HOURS" default:"1h"`
	WebhookFailDedupe  time.Duration `envconfig:"LEDGER_DEDUPE_WEBHOOK_FAIL" default:"30m"`
	PreconditionDedupe time.Duration `envconfig:"LEDGER_DEDUPE_PRECONDITION" default:"4h"`
	SkipDedupe         time.Duration `envconfig:"LEDGER_DEDUPE_SKIP" default:"4h"`
}

// AlertConfig holds Alert Monitor thresholds and dispatch settings.
type AlertConfig struct {
	LookbackWindow     time.Duration `envconfig:"ALERT_LOOKBACK_WINDOW" default:"1h"`
	SuppressionWindow  time.Duration `envconfig:"ALERT_SUPPRESSION_WINDOW" default:"15m"`
	AttemptGracePeriod time.Duration `envconfig:"ALERT_ATTEMPT_GRACE" default:"20m"`
	CancellationDelay  time.Duration `envconfig:"ALERT_CANCELLATION_DELAY" default:"2m"`

	FailureWarnCount      int `envconfig:"ALERT_FAILURE_WARN" default:"5"`
	FailureCriticalCount  int `envconfig:"ALERT_FAILURE_CRITICAL" default:"20"`
	PrecondWarnCount      int `envconfig:"ALERT_PRECONDITION_WARN" default:"3"`
	PrecondCriticalCount  int `envconfig:"ALERT_PRECONDITION_CRITICAL" default:"10"`
	MissingAttemptCount   int `envconfig:"ALERT_MISSING_ATTEMPTS" default:"3"`
	CancellationGapCount  int `envconfig:"ALERT_CANCELLATION_GAP" default:"1"`

	// Fallback ops destination used when no subscription rows exist.
	DefaultWebhookURL  string `envconfig:"ALERT_WEBHOOK_URL" validate:"omitempty,url"`
	DefaultMinSeverity string `envconfig:"ALERT_MIN_SEVERITY" default:"warn" validate:"oneof=warn critical"`

	WebhookTimeout time.Duration `envconfig:"ALERT_WEBHOOK_TIMEOUT" default:"10s"`
}

// ServerConfig holds HTTP server settings for the operator API.
type ServerConfig struct {
	Port     string `envconfig:"PORT" default:"8080"`
	APIToken string `envconfig:"OPERATOR_API_TOKEN"`
}

// MetricsConfig holds telemetry settings.
type MetricsConfig struct {
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"Remindpoint"`
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`
}
