// Package window implements the eligibility-window calculator for reminder
// notifications. All functions are pure: given "now" and an appointment
// time they decide membership, and for range queries they translate a
// window into absolute instants.
//
// A window is expressed in hours before the appointment as a half-open
// interval [StartHours, EndHours): an appointment is eligible when
// hoursUntil = (appointmentAt - now) / 1h falls inside it. Past
// appointments (negative hoursUntil) are never eligible for any window.
package window

import (
	"fmt"
	"time"

	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

// Window is a half-open [StartHours, EndHours) range of hours before the
// appointment during which a notification type is eligible.
type Window struct {
	StartHours float64
	EndHours   float64
}

// Contains reports whether an appointment scheduled at appointmentAt is
// inside the window relative to now. Start is inclusive, end exclusive.
func (w Window) Contains(now, appointmentAt time.Time) bool {
	hoursUntil := appointmentAt.Sub(now).Hours()
	if hoursUntil < 0 {
		return false
	}
	return hoursUntil >= w.StartHours && hoursUntil < w.EndHours
}

// Range returns the absolute [start, end) instants corresponding to the
// window relative to now, suitable for a scheduled-time range query:
// an appointment at time t is inside the window iff start <= t < end.
func (w Window) Range(now time.Time) (time.Time, time.Time) {
	start := now.Add(time.Duration(w.StartHours * float64(time.Hour)))
	end := now.Add(time.Duration(w.EndHours * float64(time.Hour)))
	return start, end
}

// Width returns the window's duration.
func (w Window) Width() time.Duration {
	return time.Duration((w.EndHours - w.StartHours) * float64(time.Hour))
}

// Set maps each window-driven notification type to its eligibility window.
type Set map[types.NotificationType]Window

// NewSet builds the window set from configuration. Only the two reminder
// types are window-driven; booking confirmations and cancellation notices
// are event-triggered and have no window.
func NewSet(cfg config.WindowConfig) Set {
	return Set{
		types.NotificationReminder24h: {
			StartHours: cfg.DayBeforeStartHours,
			EndHours:   cfg.DayBeforeEndHours,
		},
		types.NotificationReminder1h: {
			StartHours: cfg.HourBeforeStartHours,
			EndHours:   cfg.HourBeforeEndHours,
		},
	}
}

// For returns the window for a notification type.
func (s Set) For(t types.NotificationType) (Window, error) {
	w, ok := s[t]
	if !ok {
		return Window{}, fmt.Errorf("no eligibility window defined for notification type %q", t)
	}
	return w, nil
}
