package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remindpoint/internal/config"
	"remindpoint/internal/delivery"
	"remindpoint/internal/types"
	"remindpoint/internal/window"
)

// Reminders is the poll-tick orchestrator. For each configured notification
// type it computes the eligible range, range-queries the appointment store,
// and runs every returned appointment through the per-appointment state
// machine, writing exactly one (possibly dedup-suppressed) ledger row.
type Reminders struct {
	store   AppointmentStore
	ledger  AttemptLedger
	sender  Sender
	windows window.Set
	quiet   config.QuietHoursConfig
	poll    time.Duration
	metrics Metrics
	clock   types.Clock
	logger  types.Logger
}

// RemindersConfig holds the dependencies for constructing a Reminders
// scheduler.
type RemindersConfig struct {
	Store        AppointmentStore
	Ledger       AttemptLedger
	Sender       Sender
	Windows      window.Set
	Quiet        config.QuietHoursConfig
	PollInterval time.Duration
	Metrics      Metrics
	Clock        types.Clock
	Logger       types.Logger
}

// NewReminders creates a Reminders scheduler.
func NewReminders(cfg RemindersConfig) *Reminders {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Reminders{
		store:   cfg.Store,
		ledger:  cfg.Ledger,
		sender:  cfg.Sender,
		windows: cfg.Windows,
		quiet:   cfg.Quiet,
		poll:    cfg.PollInterval,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
	}
}

// Tick runs one poll tick. Failure of one appointment never aborts the
// remaining batch; failure of one notification type never aborts the
// remaining types. The returned error covers only infrastructure failures
// that prevented the tick from evaluating anything at all.
func (s *Reminders) Tick(ctx context.Context) (TickResult, error) {
	now := s.clock.Now()
	var result TickResult

	for _, ntype := range types.ReminderTypes {
		w, err := s.windows.For(ntype)
		if err != nil {
			s.logger.Error("no window configured for notification type",
				"type", string(ntype),
				"error", err.Error(),
			)
			continue
		}

		start, end := w.Range(now)
		appointments, err := s.store.ListScheduledBetween(ctx, start, end)
		if err != nil {
			s.logger.Error("range query failed for notification type",
				"type", string(ntype),
				"start", start.Format(time.RFC3339),
				"end", end.Format(time.RFC3339),
				"error", err.Error(),
			)
			continue
		}

		s.logger.Info("evaluating eligible appointments",
			"type", string(ntype),
			"count", len(appointments),
			"window_start", start.Format(time.RFC3339),
			"window_end", end.Format(time.RFC3339),
		)

		for _, appt := range appointments {
			status := s.evaluateOne(ctx, now, ntype, w, appt)
			result.tally(status)
		}
	}

	s.sweepCancellations(ctx, now, &result)

	s.logger.Info("reminder tick complete",
		"evaluated", result.Evaluated,
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result, nil
}

// sweepCancellations sends the cancellation notice for appointments
// cancelled since the last tick. The lookback spans two poll intervals to
// tolerate tick jitter, plus the longest quiet-hours span so a notice
// deferred overnight stays in the sweep until it can be sent; the
// already-sent check keeps the overlap idempotent.
func (s *Reminders) sweepCancellations(ctx context.Context, now time.Time, result *TickResult) {
	lookback := 2 * s.poll
	if lookback <= 0 {
		lookback = 2 * time.Hour
	}
	lookback += s.quiet.MaxSpan()

	cancelled, err := s.store.ListCancelledBetween(ctx, now.Add(-lookback), now)
	if err != nil {
		s.logger.Error("cancellation sweep query failed", "error", err.Error())
		return
	}
	if len(cancelled) == 0 {
		return
	}

	s.logger.Info("sweeping cancelled appointments", "count", len(cancelled))
	for _, appt := range cancelled {
		status := s.evaluateOne(ctx, now, types.NotificationCancellation, window.Window{}, appt)
		result.tally(status)
	}
}

// evaluateOne runs the state machine for one (appointment, type) pair.
// Every exit path records exactly one ledger row (possibly suppressed by
// the ledger's noisy-status dedup). A panic in evaluation is converted to a
// failed_processing row so the batch continues.
func (s *Reminders) evaluateOne(ctx context.Context, now time.Time, ntype types.NotificationType, w window.Window, appt *types.Appointment) (status types.AttemptStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = types.AttemptFailedProcessing
			s.record(ctx, now, ntype, appt, status, types.ReasonProcessingError,
				fmt.Sprintf("panic during evaluation: %v", r), nil)
		}
	}()

	// 1. Already sent: the pair has a durable success; nothing more may fire.
	sent, err := s.ledger.HasSucceeded(ctx, appt.ID, ntype)
	if err != nil {
		status = types.AttemptFailedProcessing
		s.record(ctx, now, ntype, appt, status, types.ReasonProcessingError,
			fmt.Sprintf("ledger dedup check failed: %v", err), nil)
		return status
	}
	if sent {
		status = types.AttemptSkippedAlreadySent
		s.record(ctx, now, ntype, appt, status, types.ReasonAlreadySent,
			"a succeeded attempt already exists for this pair", nil)
		return status
	}

	// 2. Booking confirmation covered this window: the appointment was
	// booked while already inside the day-before window, so the booking
	// confirmation serves as the reminder.
	if ntype == types.NotificationReminder24h {
		covered, err := s.bookingConfirmationCovers(ctx, w, appt)
		if err != nil {
			status = types.AttemptFailedProcessing
			s.record(ctx, now, ntype, appt, status, types.ReasonProcessingError,
				fmt.Sprintf("booking confirmation lookup failed: %v", err), nil)
			return status
		}
		if covered {
			status = types.AttemptSkippedBookingConfirmation
			s.record(ctx, now, ntype, appt, status, types.ReasonBookedInWindow,
				"booking confirmation was sent inside this window", nil)
			return status
		}
	}

	// 3. Preconditions: quiet-hours config and patient record. An invalid
	// configuration is an operator problem and must never be silently
	// treated as "not quiet".
	quiet, err := inQuietHours(s.quiet, now)
	if err != nil {
		status = types.AttemptFailedPrecondition
		s.record(ctx, now, ntype, appt, status, types.ReasonQuietHoursInvalid,
			fmt.Sprintf("IT action required: %v", err), nil)
		return status
	}

	patient, err := s.store.GetPatient(ctx, appt.PatientID)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundPatient {
			status = types.AttemptFailedPrecondition
			s.record(ctx, now, ntype, appt, status, types.ReasonPatientNotFound,
				fmt.Sprintf("IT action required: patient %s not found", appt.PatientID), nil)
			return status
		}
		status = types.AttemptFailedProcessing
		s.record(ctx, now, ntype, appt, status, types.ReasonProcessingError,
			fmt.Sprintf("patient lookup failed: %v", err), nil)
		return status
	}

	// 4. Quiet hours: defer to a later tick, never abandon. The window
	// width guarantees a later tick outside quiet hours still sees the
	// appointment.
	if quiet {
		status = types.AttemptSkippedQuietHours
		s.record(ctx, now, ntype, appt, status, types.ReasonQuietHours,
			"deferred: inside configured quiet hours", nil)
		return status
	}

	// 5. Send.
	res := s.sender.Send(ctx, delivery.Message{
		Recipient:   patient.Phone,
		Body:        composeBody(ntype, patient, appt.ScheduledAt),
		ReferenceID: fmt.Sprintf("%s:%s", appt.ID, ntype),
	})

	detail := sendDetail(res)
	switch {
	case res.OK:
		status = types.AttemptSucceeded
		s.record(ctx, now, ntype, appt, status, types.ReasonSent,
			fmt.Sprintf("delivered after %d attempt(s)", res.AttemptCount), detail)
	case res.FailureReason == types.ReasonEndpointNotConfigured:
		// Send never happened: this is a config problem, not a transport
		// failure, and must be classified separately for the alert monitor.
		status = types.AttemptFailedPrecondition
		s.record(ctx, now, ntype, appt, status, res.FailureReason,
			"IT action required: sms gateway endpoint not configured", detail)
	default:
		status = types.AttemptFailedWebhook
		s.record(ctx, now, ntype, appt, status, res.FailureReason, res.ErrorMessage, detail)
	}
	return status
}

// bookingConfirmationCovers reports whether a succeeded booking confirmation
// was sent at a moment when the appointment was already inside the window.
func (s *Reminders) bookingConfirmationCovers(ctx context.Context, w window.Window, appt *types.Appointment) (bool, error) {
	latest, err := s.ledger.LatestAttempt(ctx, appt.ID, types.NotificationBookingConfirmation)
	if err != nil {
		return false, err
	}
	if latest == nil || latest.Status != types.AttemptSucceeded {
		return false, nil
	}
	return w.Contains(latest.AttemptedAt, appt.ScheduledAt), nil
}

// record writes one ledger row for the evaluation outcome. Ledger write
// failures are logged, not propagated: a broken audit trail must not stop
// the remaining batch, and the silent-scheduler detector will surface a
// persistently failing ledger.
func (s *Reminders) record(
	ctx context.Context,
	now time.Time,
	ntype types.NotificationType,
	appt *types.Appointment,
	status types.AttemptStatus,
	reason types.ReasonCode,
	note string,
	detail json.RawMessage,
) {
	written, err := s.ledger.Record(ctx, &types.ReminderAttempt{
		TenantID:      appt.TenantID,
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		Type:          ntype,
		TargetTime:    appt.ScheduledAt,
		AttemptedAt:   now,
		Status:        status,
		Reason:        reason,
		Note:          note,
		Detail:        detail,
	})
	if err != nil {
		s.logger.Error("failed to record attempt",
			"appointment_id", appt.ID,
			"type", string(ntype),
			"status", string(status),
			"error", err.Error(),
		)
		return
	}

	s.metrics.RecordAttempt(ctx, ntype, status)

	if written {
		s.logger.Info("attempt recorded",
			"appointment_id", appt.ID,
			"type", string(ntype),
			"status", string(status),
			"reason", string(reason),
		)
	}
}

// tally updates the tick counters for one evaluation outcome.
func (r *TickResult) tally(status types.AttemptStatus) {
	r.Evaluated++
	switch status {
	case types.AttemptSucceeded:
		r.Sent++
	case types.AttemptSkippedAlreadySent, types.AttemptSkippedBookingConfirmation, types.AttemptSkippedQuietHours:
		r.Skipped++
	default:
		r.Failed++
	}
}

// composeBody renders the SMS text for a notification type. Localization is
// out of scope; the wording lives with the template owner.
func composeBody(ntype types.NotificationType, patient *types.Patient, scheduledAt time.Time) string {
	when := scheduledAt.Format("Mon Jan 2 at 15:04")
	switch ntype {
	case types.NotificationReminder24h:
		return fmt.Sprintf("Hi %s, a reminder that your appointment is tomorrow, %s.", patient.Name, when)
	case types.NotificationReminder1h:
		return fmt.Sprintf("Hi %s, your appointment is coming up at %s.", patient.Name, scheduledAt.Format("15:04"))
	case types.NotificationBookingConfirmation:
		return fmt.Sprintf("Hi %s, your appointment is confirmed for %s.", patient.Name, when)
	case types.NotificationCancellation:
		return fmt.Sprintf("Hi %s, your appointment on %s has been cancelled.", patient.Name, when)
	default:
		return fmt.Sprintf("Hi %s, an update about your appointment on %s.", patient.Name, when)
	}
}

// sendDetail serializes the delivery result as the attempt's detail blob.
func sendDetail(res delivery.Result) json.RawMessage {
	payload := map[string]any{
		"attempt_count": res.AttemptCount,
	}
	if res.StatusCode != nil {
		payload["status_code"] = *res.StatusCode
	}
	if res.ErrorMessage != "" {
		payload["error"] = res.ErrorMessage
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}
