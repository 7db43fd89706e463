// Package scheduler implements the scheduled poll-tick services of the
// reminder pipeline: the Reminder Scheduler (one tick = one evaluation pass
// over every appointment currently inside an eligibility window), the
// booking-time suppression hook, and the Alert Monitor.
//
// Each tick is an independent stateless invocation triggered by an external
// timer. There is no in-process queue; overlapping ticks are tolerated
// because the ledger dedup check, not a process lock, provides the
// at-most-once send guarantee.
package scheduler

import (
	"context"
	"time"

	"remindpoint/internal/delivery"
	"remindpoint/internal/types"
)

// AppointmentStore abstracts the external appointment/patient store. The
// core only reads from it. Satisfied by *db.AppointmentRepository.
type AppointmentStore interface {
	// ListScheduledBetween returns appointments with scheduled time in
	// [start, end) that are still in the scheduled state.
	ListScheduledBetween(ctx context.Context, start, end time.Time) ([]*types.Appointment, error)
	// ListCancelledBetween returns appointments cancelled in [start, end).
	ListCancelledBetween(ctx context.Context, start, end time.Time) ([]*types.Appointment, error)
	// GetPatient returns the patient record needed to address a message.
	GetPatient(ctx context.Context, id string) (*types.Patient, error)
}

// AttemptLedger abstracts the attempt ledger service. Satisfied by
// *ledger.Ledger.
type AttemptLedger interface {
	HasSucceeded(ctx context.Context, appointmentID string, t types.NotificationType) (bool, error)
	LatestAttempt(ctx context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error)
	// Record appends an attempt row; returns false when the row was
	// suppressed as a noisy duplicate.
	Record(ctx context.Context, a *types.ReminderAttempt) (bool, error)
}

// Sender abstracts the Delivery Client.
type Sender interface {
	Send(ctx context.Context, msg delivery.Message) delivery.Result
}

// Metrics abstracts telemetry for scheduler outcomes. A no-op implementation
// is used in tests and when metrics are disabled.
type Metrics interface {
	RecordAttempt(ctx context.Context, t types.NotificationType, status types.AttemptStatus)
	RecordAlert(ctx context.Context, alertType types.AlertType, severity types.Severity)
}

// NopMetrics discards all metric emissions.
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(context.Context, types.NotificationType, types.AttemptStatus) {}
func (NopMetrics) RecordAlert(context.Context, types.AlertType, types.Severity)               {}

// TickResult summarizes one Reminder Scheduler tick for logging and the
// Lambda response payload.
type TickResult struct {
	Evaluated int `json:"evaluated"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
