// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC process timezone to prevent drift bugs.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Process envconfig struct tags to populate the Config struct.
//  4. Validate the struct using go-playground/validator.
//  5. Run the cross-field checks (quiet hours range, window/cadence coupling).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates envconfig failed to parse an environment value.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is a diagnostic error type returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the remindpoint configuration from the process
// environment, reading a .env file first when present.
func Load() (*Config, error) {
	time.Local = time.UTC

	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment", Err: err}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	if err := cfg.Quiet.Validate(); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "quiet hours configuration invalid", Err: err}
	}

	if err := cfg.Windows.Validate(cfg.Quiet.MaxSpan()); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "window/cadence coupling violated", Err: err}
	}

	return &cfg, nil
}

// Validate checks the quiet-hours bounds. Start and end must be hours of day.
// Start == End disables quiet hours entirely.
func (q QuietHoursConfig) Validate() error {
	if q.StartHour < 0 || q.StartHour > 23 {
		return fmt.Errorf("quiet hours start %d outside 0-23", q.StartHour)
	}
	if q.EndHour < 0 || q.EndHour > 23 {
		return fmt.Errorf("quiet hours end %d outside 0-23", q.EndHour)
	}
	if _, err := time.LoadLocation(q.Timezone); err != nil {
		return fmt.Errorf("invalid tenant timezone %q: %w", q.Timezone, err)
	}
	return nil
}

// MaxSpan returns the length of the contiguous quiet-hours range, accounting
// for ranges that wrap midnight. Zero when quiet hours are disabled.
func (q QuietHoursConfig) MaxSpan() time.Duration {
	if q.StartHour == q.EndHour {
		return 0
	}
	hours := q.EndHour - q.StartHour
	if hours < 0 {
		hours += 24
	}
	return time.Duration(hours) * time.Hour
}

// Validate enforces the window/cadence coupling invariant: every window must
// be wider than the poll interval plus the longest quiet-hours span, or
// appointments booked near a window edge are silently never reminded. This
// was a real production defect (hourly cadence with a ~30 minute window).
func (w WindowConfig) Validate(quietSpan time.Duration) error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", w.PollInterval)
	}

	minWidth := w.PollInterval + quietSpan

	check := func(name string, startHours, endHours float64) error {
		if endHours <= startHours {
			return fmt.Errorf("%s window end %.2fh must exceed start %.2fh", name, endHours, startHours)
		}
		width := time.Duration((endHours - startHours) * float64(time.Hour))
		if width <= minWidth {
			return fmt.Errorf(
				"%s window width %s must exceed poll interval + quiet span (%s)",
				name, width, minWidth,
			)
		}
		return nil
	}

	if err := check("24h", w.DayBeforeStartHours, w.DayBeforeEndHours); err != nil {
		return err
	}
	// The 1h window cannot absorb an overnight quiet span; it is only required
	// to cover the poll gap. Quiet-hours deferral for the 1h reminder is
	// handled by the wide 24h window having already fired.
	if w.HourBeforeEndHours <= w.HourBeforeStartHours {
		return fmt.Errorf("1h window end %.2fh must exceed start %.2fh", w.HourBeforeEndHours, w.HourBeforeStartHours)
	}
	width := time.Duration((w.HourBeforeEndHours - w.HourBeforeStartHours) * float64(time.Hour))
	if width <= w.PollInterval {
		return fmt.Errorf("1h window width %s must exceed poll interval %s", width, w.PollInterval)
	}

	return nil
}
