package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"remindpoint/internal/alerts"
	"remindpoint/internal/config"
	"remindpoint/internal/types"
	"remindpoint/internal/window"
)

// AttemptStats is the read surface the Alert Monitor needs over the attempt
// ledger. Satisfied by *db.AttemptRepository.
type AttemptStats interface {
	CountByStatusSince(ctx context.Context, status types.AttemptStatus, since time.Time) (int, error)
	ReasonBreakdownSince(ctx context.Context, status types.AttemptStatus, since time.Time) (map[types.ReasonCode]int, error)
	AppointmentIDsWithAttemptsSince(ctx context.Context, t types.NotificationType, since time.Time) (map[string]struct{}, error)
	Latest(ctx context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error)
}

// AppointmentReader is the appointment-store surface the monitor needs.
type AppointmentReader interface {
	ListScheduledBetween(ctx context.Context, start, end time.Time) ([]*types.Appointment, error)
	ListCancelledBetween(ctx context.Context, start, end time.Time) ([]*types.Appointment, error)
}

// AlertSink dispatches a raised alert. Satisfied by *alerts.Dispatcher.
type AlertSink interface {
	Dispatch(ctx context.Context, a types.Alert) alerts.DispatchResult
}

// Monitor is the watchdog poll service. Each tick runs four independent
// detectors over the trailing lookback window and routes anything they raise
// through the alert dispatcher.
type Monitor struct {
	appointments AppointmentReader
	attempts     AttemptStats
	sink         AlertSink
	windows      window.Set
	cfg          config.AlertConfig
	quiet        config.QuietHoursConfig
	metrics      Metrics
	clock        types.Clock
	logger       types.Logger
}

// MonitorConfig holds the dependencies for constructing a Monitor.
type MonitorConfig struct {
	Appointments AppointmentReader
	Attempts     AttemptStats
	Sink         AlertSink
	Windows      window.Set
	Alerts       config.AlertConfig
	Quiet        config.QuietHoursConfig
	Metrics      Metrics
	Clock        types.Clock
	Logger       types.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
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
	return &Monitor{
		appointments: cfg.Appointments,
		attempts:     cfg.Attempts,
		sink:         cfg.Sink,
		windows:      cfg.Windows,
		cfg:          cfg.Alerts,
		quiet:        cfg.Quiet,
		metrics:      metrics,
		clock:        clock,
		logger:       logger,
	}
}

// MonitorResult summarizes one monitor tick.
type MonitorResult struct {
	Raised     int `json:"raised"`
	Suppressed int `json:"suppressed"`
	Delivered  int `json:"delivered"`
}

// Tick runs all detectors concurrently and dispatches whatever they raise.
// Detectors are independent: one failing detector is logged and the others
// still report. Dispatch happens sequentially after all detectors finish so
// dedup reads and writes never race each other.
func (m *Monitor) Tick(ctx context.Context) (MonitorResult, error) {
	now := m.clock.Now()

	detectors := []struct {
		name string
		run  func(ctx context.Context, now time.Time) ([]types.Alert, error)
	}{
		{"delivery_failure_spike", m.detectFailureSpike},
		{"precondition_failure_spike", m.detectPreconditionSpike},
		{"silent_scheduler", m.detectSilentScheduler},
		{"cancellation_gap", m.detectCancellationGap},
	}

	raised := make([][]types.Alert, len(detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		g.Go(func() error {
			found, err := d.run(gctx, now)
			if err != nil {
				m.logger.Error("detector failed", "detector", d.name, "error", err.Error())
				return nil
			}
			raised[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var result MonitorResult
	for _, batch := range raised {
		for _, a := range batch {
			result.Raised++
			m.metrics.RecordAlert(ctx, a.Type, a.Severity)

			res := m.sink.Dispatch(ctx, a)
			switch {
			case res.Suppressed:
				result.Suppressed++
			case res.Delivered():
				result.Delivered++
			}
		}
	}

	m.logger.Info("alert monitor tick complete",
		"raised", result.Raised,
		"suppressed", result.Suppressed,
		"delivered", result.Delivered,
	)
	return result, nil
}

// detectFailureSpike raises when webhook delivery failures in the lookback
// window cross the warn or critical threshold.
func (m *Monitor) detectFailureSpike(ctx context.Context, now time.Time) ([]types.Alert, error) {
	since := now.Add(-m.cfg.LookbackWindow)
	count, err := m.attempts.CountByStatusSince(ctx, types.AttemptFailedWebhook, since)
	if err != nil {
		return nil, err
	}

	sev := severityFor(count, m.cfg.FailureWarnCount, m.cfg.FailureCriticalCount)
	if sev == "" {
		return nil, nil
	}

	detail, _ := json.Marshal(map[string]any{
		"failed_count":     count,
		"lookback_minutes": int(m.cfg.LookbackWindow.Minutes()),
	})
	return []types.Alert{{
		Type:     types.AlertDeliveryFailureSpike,
		Severity: sev,
		Title:    "Reminder delivery failures are spiking",
		Body: fmt.Sprintf("%d reminder sends failed at the SMS gateway in the last %s.",
			count, m.cfg.LookbackWindow),
		Detail:   detail,
		RaisedAt: now,
	}}, nil
}

// detectPreconditionSpike raises when precondition failures (missing
// patients, broken config) cross thresholds. The reason breakdown goes into
// the alert detail so the on-call can see what kind of data is broken.
func (m *Monitor) detectPreconditionSpike(ctx context.Context, now time.Time) ([]types.Alert, error) {
	since := now.Add(-m.cfg.LookbackWindow)
	count, err := m.attempts.CountByStatusSince(ctx, types.AttemptFailedPrecondition, since)
	if err != nil {
		return nil, err
	}

	sev := severityFor(count, m.cfg.PrecondWarnCount, m.cfg.PrecondCriticalCount)
	if sev == "" {
		return nil, nil
	}

	breakdown, err := m.attempts.ReasonBreakdownSince(ctx, types.AttemptFailedPrecondition, since)
	if err != nil {
		m.logger.Error("reason breakdown query failed", "error", err.Error())
		breakdown = nil
	}
	detail, _ := json.Marshal(map[string]any{
		"failed_count":     count,
		"lookback_minutes": int(m.cfg.LookbackWindow.Minutes()),
		"reasons":          breakdown,
	})
	return []types.Alert{{
		Type:     types.AlertPreconditionSpike,
		Severity: sev,
		Title:    "Reminder precondition failures need IT attention",
		Body: fmt.Sprintf("%d reminder attempts failed preconditions (missing patients or broken configuration) in the last %s.",
			count, m.cfg.LookbackWindow),
		Detail:   detail,
		RaisedAt: now,
	}}, nil
}

// detectSilentScheduler raises when appointments have sat inside an
// eligibility window past the grace period with no attempt of any status
// recorded, which means the scheduler itself is not running or not writing.
func (m *Monitor) detectSilentScheduler(ctx context.Context, now time.Time) ([]types.Alert, error) {
	var alertsOut []types.Alert

	for _, ntype := range types.ReminderTypes {
		w, err := m.windows.For(ntype)
		if err != nil {
			continue
		}

		// In-window for at least the grace period: entry happened at
		// scheduledAt - endHours, so the upper bound shrinks by grace.
		start, end := w.Range(now)
		end = end.Add(-m.cfg.AttemptGracePeriod)
		if !end.After(start) {
			continue
		}

		eligible, err := m.appointments.ListScheduledBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if len(eligible) == 0 {
			continue
		}

		attempted, err := m.attempts.AppointmentIDsWithAttemptsSince(ctx, ntype, now.Add(-m.cfg.LookbackWindow))
		if err != nil {
			return nil, err
		}

		// The recent-attempt set is a fast path. An appointment absent from
		// it may still have older rows (a success from an earlier tick, or
		// skips the ledger dedup stopped re-recording), so a miss falls back
		// to the per-appointment lookup before counting as silent.
		var missing []string
		for _, appt := range eligible {
			if _, ok := attempted[appt.ID]; ok {
				continue
			}
			latest, err := m.attempts.Latest(ctx, appt.ID, ntype)
			if err != nil {
				m.logger.Error("attempt lookup failed",
					"appointment_id", appt.ID,
					"error", err.Error(),
				)
				continue
			}
			if latest == nil {
				missing = append(missing, appt.ID)
			}
		}
		if len(missing) < m.cfg.MissingAttemptCount {
			continue
		}

		detail, _ := json.Marshal(map[string]any{
			"notification_type":    string(ntype),
			"missing_count":        len(missing),
			"appointment_ids":      missing,
			"grace_period_minutes": int(m.cfg.AttemptGracePeriod.Minutes()),
		})
		alertsOut = append(alertsOut, types.Alert{
			Type:     types.AlertMissingAttempts,
			Severity: types.SeverityCritical,
			Title:    "Reminder scheduler appears silent",
			Body: fmt.Sprintf("%d appointments are inside the %s window with no attempt recorded after the %s grace period.",
				len(missing), ntype, m.cfg.AttemptGracePeriod),
			Detail:   detail,
			RaisedAt: now,
		})
	}

	return alertsOut, nil
}

// detectCancellationGap raises when recently cancelled appointments have no
// cancellation notice sent once the expected delay has passed. A quiet-hours
// deferral row does not count as sent: it only buys time until quiet hours
// end plus one lookback of daytime cadence. The scan range extends past the
// quiet span so an overnight cancellation stays visible until it resolves.
func (m *Monitor) detectCancellationGap(ctx context.Context, now time.Time) ([]types.Alert, error) {
	// Only cancellations old enough that the notice should exist by now.
	start := now.Add(-(m.cfg.LookbackWindow + m.quiet.MaxSpan()))
	end := now.Add(-m.cfg.CancellationDelay)
	if !end.After(start) {
		return nil, nil
	}

	cancelled, err := m.appointments.ListCancelledBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	quietNow, err := inQuietHours(m.quiet, now)
	if err != nil {
		m.logger.Error("quiet hours evaluation failed", "error", err.Error())
		quietNow = false
	}

	var missing []string
	for _, appt := range cancelled {
		latest, err := m.attempts.Latest(ctx, appt.ID, types.NotificationCancellation)
		if err != nil {
			m.logger.Error("cancellation attempt lookup failed",
				"appointment_id", appt.ID,
				"error", err.Error(),
			)
			continue
		}
		switch {
		case latest == nil:
			missing = append(missing, appt.ID)
		case latest.Status == types.AttemptSkippedQuietHours:
			if !quietNow && now.Sub(latest.AttemptedAt) >= m.cfg.LookbackWindow {
				missing = append(missing, appt.ID)
			}
		}
	}
	if len(missing) < m.cfg.CancellationGapCount {
		return nil, nil
	}

	detail, _ := json.Marshal(map[string]any{
		"missing_count":   len(missing),
		"appointment_ids": missing,
		"delay_minutes":   int(m.cfg.CancellationDelay.Minutes()),
	})
	return []types.Alert{{
		Type:     types.AlertCancellationSMSMissing,
		Severity: types.SeverityCritical,
		Title:    "Cancellation notices are not going out",
		Body: fmt.Sprintf("%d cancelled appointments have no cancellation SMS recorded after %s.",
			len(missing), m.cfg.CancellationDelay),
		Detail:   detail,
		RaisedAt: now,
	}}, nil
}

// severityFor maps a count against warn/critical thresholds. Empty severity
// means below the warn line.
func severityFor(count, warn, critical int) types.Severity {
	switch {
	case critical > 0 && count >= critical:
		return types.SeverityCritical
	case warn > 0 && count >= warn:
		return types.SeverityWarn
	default:
		return ""
	}
}
