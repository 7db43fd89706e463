package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindpoint/internal/alerts"
	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

// mockAttemptStats is an in-memory AttemptStats.
type mockAttemptStats struct {
	counts    map[types.AttemptStatus]int
	breakdown map[types.ReasonCode]int
	attempted map[string]struct{}
	latest    map[string]*types.ReminderAttempt
	countErr  error
	idsErr    error
	latestErr error
}

func (m *mockAttemptStats) CountByStatusSince(_ context.Context, status types.AttemptStatus, _ time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.counts[status], nil
}

func (m *mockAttemptStats) ReasonBreakdownSince(_ context.Context, _ types.AttemptStatus, _ time.Time) (map[types.ReasonCode]int, error) {
	return m.breakdown, nil
}

func (m *mockAttemptStats) AppointmentIDsWithAttemptsSince(_ context.Context, _ types.NotificationType, _ time.Time) (map[string]struct{}, error) {
	if m.idsErr != nil {
		return nil, m.idsErr
	}
	if m.attempted == nil {
		return map[string]struct{}{}, nil
	}
	return m.attempted, nil
}

func (m *mockAttemptStats) Latest(_ context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest[ledgerKey(appointmentID, t)], nil
}

// mockSink records dispatched alerts and returns a canned result.
type mockSink struct {
	dispatched []types.Alert
	result     alerts.DispatchResult
}

func (m *mockSink) Dispatch(_ context.Context, a types.Alert) alerts.DispatchResult {
	m.dispatched = append(m.dispatched, a)
	return m.result
}

func deliveredResult() alerts.DispatchResult {
	return alerts.DispatchResult{
		Outcomes: []alerts.DispatchOutcome{{Address: "https://hooks.example.com/x", Delivered: true}},
	}
}

func testAlertConfig() config.AlertConfig {
	return config.AlertConfig{
		LookbackWindow:       time.Hour,
		SuppressionWindow:    15 * time.Minute,
		AttemptGracePeriod:   20 * time.Minute,
		CancellationDelay:    2 * time.Minute,
		FailureWarnCount:     5,
		FailureCriticalCount: 20,
		PrecondWarnCount:     3,
		PrecondCriticalCount: 10,
		MissingAttemptCount:  3,
		CancellationGapCount: 1,
	}
}

func newTestMonitor(appointments AppointmentReader, attempts AttemptStats, sink AlertSink, now time.Time) *Monitor {
	return NewMonitor(MonitorConfig{
		Appointments: appointments,
		Attempts:     attempts,
		Sink:         sink,
		Windows:      testWindows(),
		Alerts:       testAlertConfig(),
		Quiet:        quietNights(),
		Clock:        types.FixedClock{T: now},
		Logger:       types.NopLogger{},
	})
}

func alertOfType(t *testing.T, dispatched []types.Alert, want types.AlertType) types.Alert {
	t.Helper()
	for _, a := range dispatched {
		if a.Type == want {
			return a
		}
	}
	t.Fatalf("no %s alert dispatched (got %d alerts)", want, len(dispatched))
	return types.Alert{}
}

func TestMonitorTick_QuietWhenBelowThresholds(t *testing.T) {
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{}, &mockAttemptStats{
		counts: map[types.AttemptStatus]int{
			types.AttemptFailedWebhook:      4, // warn is 5
			types.AttemptFailedPrecondition: 2, // warn is 3
		},
	}, sink, testNow)

	result, err := m.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Raised != 0 {
		t.Errorf("raised %d alerts below every threshold", result.Raised)
	}
	if len(sink.dispatched) != 0 {
		t.Errorf("dispatched %d alerts, want 0", len(sink.dispatched))
	}
}

func TestMonitorTick_FailureSpikeSeverity(t *testing.T) {
	cases := []struct {
		name  string
		count int
		want  types.Severity
	}{
		{"at warn threshold", 5, types.SeverityWarn},
		{"between thresholds", 12, types.SeverityWarn},
		{"at critical threshold", 20, types.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &mockSink{result: deliveredResult()}
			m := newTestMonitor(&mockAppointmentStore{}, &mockAttemptStats{
				counts: map[types.AttemptStatus]int{types.AttemptFailedWebhook: tc.count},
			}, sink, testNow)

			if _, err := m.Tick(context.Background()); err != nil {
				t.Fatal(err)
			}
			a := alertOfType(t, sink.dispatched, types.AlertDeliveryFailureSpike)
			if a.Severity != tc.want {
				t.Errorf("severity = %q, want %q", a.Severity, tc.want)
			}
		})
	}
}

func TestMonitorTick_PreconditionSpikeCarriesBreakdown(t *testing.T) {
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{}, &mockAttemptStats{
		counts: map[types.AttemptStatus]int{types.AttemptFailedPrecondition: 10},
		breakdown: map[types.ReasonCode]int{
			types.ReasonPatientNotFound:   8,
			types.ReasonQuietHoursInvalid: 2,
		},
	}, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := alertOfType(t, sink.dispatched, types.AlertPreconditionSpike)
	if a.Severity != types.SeverityCritical {
		t.Errorf("severity = %q, want critical", a.Severity)
	}
	if len(a.Detail) == 0 {
		t.Error("precondition alert must carry the reason breakdown detail")
	}
}

func TestMonitorTick_SilentScheduler(t *testing.T) {
	// Three appointments well inside the day-before window, past the grace
	// period, none with any recorded attempt.
	appts := []*types.Appointment{
		appointment("appt-1", testNow.Add(15*time.Hour)),
		appointment("appt-2", testNow.Add(16*time.Hour)),
		appointment("appt-3", testNow.Add(17*time.Hour)),
	}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{scheduled: appts}, &mockAttemptStats{}, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := alertOfType(t, sink.dispatched, types.AlertMissingAttempts)
	if a.Severity != types.SeverityCritical {
		t.Errorf("severity = %q, want critical", a.Severity)
	}
}

func TestMonitorTick_SilentSchedulerIgnoresAttempted(t *testing.T) {
	appts := []*types.Appointment{
		appointment("appt-1", testNow.Add(15*time.Hour)),
		appointment("appt-2", testNow.Add(16*time.Hour)),
		appointment("appt-3", testNow.Add(17*time.Hour)),
	}
	sink := &mockSink{result: deliveredResult()}
	stats := &mockAttemptStats{
		// One appointment has an attempt of any status; only two are
		// missing, which is below the threshold of three.
		attempted: map[string]struct{}{"appt-1": {}},
	}
	m := newTestMonitor(&mockAppointmentStore{scheduled: appts}, stats, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, a := range sink.dispatched {
		if a.Type == types.AlertMissingAttempts {
			t.Fatal("must not raise when missing count is below threshold")
		}
	}
}

func TestMonitorTick_SilentSchedulerHonorsGracePeriod(t *testing.T) {
	// The appointment entered the day-before window 10 minutes ago (window
	// end is 25h before the appointment): still inside the 20-minute grace
	// period, so no alert yet.
	fresh := appointment("appt-1", testNow.Add(25*time.Hour-10*time.Minute))
	appts := []*types.Appointment{
		fresh,
		appointment("appt-2", testNow.Add(25*time.Hour-5*time.Minute)),
		appointment("appt-3", testNow.Add(25*time.Hour-2*time.Minute)),
	}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{scheduled: appts}, &mockAttemptStats{}, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, a := range sink.dispatched {
		if a.Type == types.AlertMissingAttempts {
			t.Fatal("appointments inside the grace period must not trigger the silent-scheduler alert")
		}
	}
}

func TestMonitorTick_SilentSchedulerIgnoresEarlierOutcomes(t *testing.T) {
	// All three appointments were handled hours ago: their rows are older
	// than the lookback window (the ledger dedup stops re-recording skips),
	// so the recent-attempt set is empty. The scheduler is not silent.
	appts := []*types.Appointment{
		appointment("appt-1", testNow.Add(15*time.Hour)),
		appointment("appt-2", testNow.Add(16*time.Hour)),
		appointment("appt-3", testNow.Add(17*time.Hour)),
	}
	earlier := testNow.Add(-3 * time.Hour)
	stats := &mockAttemptStats{
		latest: map[string]*types.ReminderAttempt{
			ledgerKey("appt-1", types.NotificationReminder24h): {
				AppointmentID: "appt-1",
				Type:          types.NotificationReminder24h,
				Status:        types.AttemptSucceeded,
				AttemptedAt:   earlier,
			},
			ledgerKey("appt-2", types.NotificationReminder24h): {
				AppointmentID: "appt-2",
				Type:          types.NotificationReminder24h,
				Status:        types.AttemptSucceeded,
				AttemptedAt:   earlier,
			},
			ledgerKey("appt-3", types.NotificationReminder24h): {
				AppointmentID: "appt-3",
				Type:          types.NotificationReminder24h,
				Status:        types.AttemptSkippedAlreadySent,
				AttemptedAt:   earlier,
			},
		},
	}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{scheduled: appts}, stats, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, a := range sink.dispatched {
		if a.Type == types.AlertMissingAttempts {
			t.Fatal("appointments with earlier recorded outcomes must not count as silent")
		}
	}
}

func TestMonitorTick_CancellationGap(t *testing.T) {
	cancelledAt := testNow.Add(-10 * time.Minute)
	appt := appointment("appt-1", testNow.Add(48*time.Hour))
	appt.Status = types.AppointmentCancelled
	appt.CancelledAt = &cancelledAt

	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{cancelled: []*types.Appointment{appt}}, &mockAttemptStats{}, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := alertOfType(t, sink.dispatched, types.AlertCancellationSMSMissing)
	if a.Severity != types.SeverityCritical {
		t.Errorf("severity = %q, want critical", a.Severity)
	}
}

func TestMonitorTick_CancellationGapIgnoresNoticed(t *testing.T) {
	cancelledAt := testNow.Add(-10 * time.Minute)
	appt := appointment("appt-1", testNow.Add(48*time.Hour))
	appt.Status = types.AppointmentCancelled
	appt.CancelledAt = &cancelledAt

	stats := &mockAttemptStats{
		latest: map[string]*types.ReminderAttempt{
			ledgerKey("appt-1", types.NotificationCancellation): {
				AppointmentID: "appt-1",
				Type:          types.NotificationCancellation,
				Status:        types.AttemptSucceeded,
			},
		},
	}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{cancelled: []*types.Appointment{appt}}, stats, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, a := range sink.dispatched {
		if a.Type == types.AlertCancellationSMSMissing {
			t.Fatal("a cancellation with a recorded notice must not raise")
		}
	}
}

func TestMonitorTick_CancellationGapStaleQuietDeferral(t *testing.T) {
	// Cancelled overnight; the only recorded outcome is a quiet-hours
	// deferral from 04:00. Quiet hours ended at 05:00 and the sweep has had
	// hours of daytime cadence, so the deferral row must not mask the gap.
	cancelledAt := testNow.Add(-6 * time.Hour)
	appt := appointment("appt-1", testNow.Add(48*time.Hour))
	appt.Status = types.AppointmentCancelled
	appt.CancelledAt = &cancelledAt

	stats := &mockAttemptStats{
		latest: map[string]*types.ReminderAttempt{
			ledgerKey("appt-1", types.NotificationCancellation): {
				AppointmentID: "appt-1",
				Type:          types.NotificationCancellation,
				Status:        types.AttemptSkippedQuietHours,
				AttemptedAt:   testNow.Add(-5 * time.Hour),
			},
		},
	}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{cancelled: []*types.Appointment{appt}}, stats, sink, testNow)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := alertOfType(t, sink.dispatched, types.AlertCancellationSMSMissing)
	if a.Severity != types.SeverityCritical {
		t.Errorf("severity = %q, want critical", a.Severity)
	}
}

func TestMonitorTick_CancellationGapAllowsActiveQuietDeferral(t *testing.T) {
	// 23:30, inside quiet hours: a cancellation deferred half an hour ago is
	// behaving exactly as configured and must not page anyone.
	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	cancelledAt := night.Add(-time.Hour)
	appt := appointment("appt-1", night.Add(48*time.Hour))
	appt.Status = types.AppointmentCancelled
	appt.CancelledAt = &cancelledAt

	stats := &mockAttemptStats{
		latest: map[string]*types.ReminderAttempt{
			ledgerKey("appt-1", types.NotificationCancellation): {
				AppointmentID: "appt-1",
				Type:          types.NotificationCancellation,
				Status:        types.AttemptSkippedQuietHours,
				AttemptedAt:   night.Add(-30 * time.Minute),
			},
		},
	}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{cancelled: []*types.Appointment{appt}}, stats, sink, night)

	if _, err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, a := range sink.dispatched {
		if a.Type == types.AlertCancellationSMSMissing {
			t.Fatal("a deferral during active quiet hours must not raise")
		}
	}
}

func TestMonitorTick_DetectorFailureDoesNotStopOthers(t *testing.T) {
	// The count queries fail, taking out the two spike detectors; the
	// cancellation-gap detector still raises.
	cancelledAt := testNow.Add(-10 * time.Minute)
	appt := appointment("appt-1", testNow.Add(48*time.Hour))
	appt.Status = types.AppointmentCancelled
	appt.CancelledAt = &cancelledAt

	stats := &mockAttemptStats{countErr: errors.New("connection reset")}
	sink := &mockSink{result: deliveredResult()}
	m := newTestMonitor(&mockAppointmentStore{cancelled: []*types.Appointment{appt}}, stats, sink, testNow)

	result, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("a detector failure must not fail the tick: %v", err)
	}
	alertOfType(t, sink.dispatched, types.AlertCancellationSMSMissing)
	if result.Raised != 1 {
		t.Errorf("raised = %d, want 1", result.Raised)
	}
}

func TestMonitorTick_CountsSuppressed(t *testing.T) {
	sink := &mockSink{result: alerts.DispatchResult{Suppressed: true}}
	m := newTestMonitor(&mockAppointmentStore{}, &mockAttemptStats{
		counts: map[types.AttemptStatus]int{types.AttemptFailedWebhook: 25},
	}, sink, testNow)

	result, err := m.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Raised != 1 || result.Suppressed != 1 || result.Delivered != 0 {
		t.Errorf("result = %+v, want 1 raised, 1 suppressed, 0 delivered", result)
	}
}
