package scheduler

import (
	"context"
	"time"

	"remindpoint/internal/types"
)

// BookingInput identifies a freshly created appointment for the booking-time
// suppression hook.
type BookingInput struct {
	AppointmentID string
	PatientID     string
	TenantID      string
	ScheduledAt   time.Time
}

// SuppressIfInWindow is the companion entry point for the appointment layer,
// called immediately after a new appointment is created. When the scheduled
// time already falls inside the day-before window, the booking confirmation
// the patient just received serves the purpose of the reminder, so a
// succeeded ledger row is synthesized to stop the very next poll tick from
// sending a second message. Returns whether suppression was applied.
func (s *Reminders) SuppressIfInWindow(ctx context.Context, in BookingInput) (bool, error) {
	w, err := s.windows.For(types.NotificationReminder24h)
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	if !w.Contains(now, in.ScheduledAt) {
		return false, nil
	}

	if _, err := s.ledger.Record(ctx, &types.ReminderAttempt{
		TenantID:      in.TenantID,
		AppointmentID: in.AppointmentID,
		PatientID:     in.PatientID,
		Type:          types.NotificationReminder24h,
		TargetTime:    in.ScheduledAt,
		AttemptedAt:   now,
		Status:        types.AttemptSucceeded,
		Reason:        types.ReasonBookedInWindow,
		Note:          "booked inside the reminder window; confirmation covers the reminder",
	}); err != nil {
		return false, err
	}

	s.logger.Info("reminder suppressed at booking time",
		"appointment_id", in.AppointmentID,
		"scheduled_at", in.ScheduledAt.Format(time.RFC3339),
	)
	return true, nil
}
