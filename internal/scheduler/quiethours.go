package scheduler

import (
	"fmt"
	"time"

	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

// inQuietHours reports whether now falls inside the configured quiet-hours
// range, evaluated as an hour of day in the tenant reference zone. The
// range may wrap midnight: start > end means "hour >= start OR hour < end".
// Start == end disables quiet hours.
//
// An out-of-range hour or unknown timezone is a configuration error, never
// silently ignored; the caller records it as a precondition failure.
func inQuietHours(cfg config.QuietHoursConfig, now time.Time) (bool, error) {
	if cfg.StartHour < 0 || cfg.StartHour > 23 {
		return false, types.NewAppError(types.ErrCodePreconditionConfig,
			fmt.Sprintf("quiet hours start %d outside 0-23", cfg.StartHour), nil)
	}
	if cfg.EndHour < 0 || cfg.EndHour > 23 {
		return false, types.NewAppError(types.ErrCodePreconditionConfig,
			fmt.Sprintf("quiet hours end %d outside 0-23", cfg.EndHour), nil)
	}
	if cfg.StartHour == cfg.EndHour {
		return false, nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return false, types.NewAppError(types.ErrCodePreconditionConfig,
			fmt.Sprintf("invalid tenant timezone %q", cfg.Timezone), err)
	}

	hour := now.In(loc).Hour()
	if cfg.StartHour > cfg.EndHour {
		// Overnight range, e.g. 22 -> 5.
		return hour >= cfg.StartHour || hour < cfg.EndHour, nil
	}
	return hour >= cfg.StartHour && hour < cfg.EndHour, nil
}
