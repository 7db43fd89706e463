// Package ledger implements the durable attempt ledger service: the single
// source of truth for "has this notification already been handled". It
// wraps the attempt repository with the dedup checks the scheduler relies
// on and with noisy-status suppression so recurring skip states do not
// flood the audit trail with identical rows every poll tick.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

// AttemptStore is the persistence interface the ledger needs. Satisfied by
// *db.AttemptRepository; narrow so tests can use an in-memory fake.
type AttemptStore interface {
	Insert(ctx context.Context, a *types.ReminderAttempt) error
	HasSucceeded(ctx context.Context, appointmentID string, t types.NotificationType) (bool, error)
	Latest(ctx context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error)
}

// Ledger is the append-only attempt ledger service.
type Ledger struct {
	store  AttemptStore
	dedupe config.LedgerConfig
	clock  types.Clock
	logger types.Logger
}

// New creates a Ledger. The dedupe windows control noisy-status suppression.
func New(store AttemptStore, dedupe config.LedgerConfig, clock types.Clock, logger types.Logger) *Ledger {
	return &Ledger{
		store:  store,
		dedupe: dedupe,
		clock:  clock,
		logger: logger,
	}
}

// HasSucceeded reports whether a succeeded attempt exists for the pair.
// This is the check that enforces the at-most-one-success invariant; the
// scheduler calls it before every send.
func (l *Ledger) HasSucceeded(ctx context.Context, appointmentID string, t types.NotificationType) (bool, error) {
	return l.store.HasSucceeded(ctx, appointmentID, t)
}

// LatestAttempt returns the most recent attempt for the pair, or nil.
func (l *Ledger) LatestAttempt(ctx context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error) {
	return l.store.Latest(ctx, appointmentID, t)
}

// Record appends one attempt row, assigning its ID and attempted-at instant.
// Recurring noisy statuses are suppressed: when the most recent row for the
// pair carries the identical (status, reason) and is younger than that
// status's dedup window, the row is dropped. State transitions are always
// recorded, so a quiet-hours skip followed by a success still produces both
// rows. Returns whether the row was written.
func (l *Ledger) Record(ctx context.Context, a *types.ReminderAttempt) (bool, error) {
	latest, err := l.store.Latest(ctx, a.AppointmentID, a.Type)
	if err != nil {
		return false, err
	}

	now := l.clock.Now()
	if l.shouldSuppress(latest, a, now) {
		l.logger.Info("ledger row suppressed as duplicate",
			"appointment_id", a.AppointmentID,
			"type", string(a.Type),
			"status", string(a.Status),
			"reason", string(a.Reason),
		)
		return false, nil
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = now
	}

	if err := l.store.Insert(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

// shouldSuppress applies the noisy-status dedup windows. Success rows are
// never suppressed: the at-most-one-success invariant is enforced upstream
// by HasSucceeded, and a first success must always be durable.
func (l *Ledger) shouldSuppress(latest, next *types.ReminderAttempt, now time.Time) bool {
	if latest == nil || next.Status == types.AttemptSucceeded {
		return false
	}
	if latest.Status != next.Status || latest.Reason != next.Reason {
		return false
	}

	window := l.dedupeWindow(next.Status)
	if window <= 0 {
		return false
	}
	return now.Sub(latest.AttemptedAt) < window
}

// dedupeWindow returns the suppression window for a status. Statuses that
// recur every tick until the underlying condition changes get longer
// windows; transient failures get shorter ones so repeated failures remain
// visible to the spike detectors.
func (l *Ledger) dedupeWindow(status types.AttemptStatus) time.Duration {
	switch status {
	case types.AttemptSkippedQuietHours:
		return l.dedupe.QuietHoursDedupe
	case types.AttemptFailedWebhook:
		return l.dedupe.WebhookFailDedupe
	case types.AttemptFailedPrecondition:
		return l.dedupe.PreconditionDedupe
	case types.AttemptSkippedAlreadySent, types.AttemptSkippedBookingConfirmation:
		return l.dedupe.SkipDedupe
	default:
		return 0
	}
}
