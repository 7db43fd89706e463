package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindpoint/internal/config"
	"remindpoint/internal/types"
)

// mockAttemptStore is an in-memory AttemptStore.
type mockAttemptStore struct {
	attempts  []*types.ReminderAttempt
	insertErr error
	latestErr error
}

func (m *mockAttemptStore) Insert(_ context.Context, a *types.ReminderAttempt) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockAttemptStore) HasSucceeded(_ context.Context, appointmentID string, t types.NotificationType) (bool, error) {
	for _, a := range m.attempts {
		if a.AppointmentID == appointmentID && a.Type == t && a.Status == types.AttemptSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAttemptStore) Latest(_ context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	var latest *types.ReminderAttempt
	for _, a := range m.attempts {
		if a.AppointmentID != appointmentID || a.Type != t {
			continue
		}
		if latest == nil || a.AttemptedAt.After(latest.AttemptedAt) {
			latest = a
		}
	}
	return latest, nil
}

func testDedupe() config.LedgerConfig {
	return config.LedgerConfig{
		QuietHoursDedupe:   time.Hour,
		WebhookFailDedupe:  30 * time.Minute,
		PreconditionDedupe: 4 * time.Hour,
		SkipDedupe:         4 * time.Hour,
	}
}

func newAttempt(status types.AttemptStatus, reason types.ReasonCode) *types.ReminderAttempt {
	return &types.ReminderAttempt{
		TenantID:      "team-1",
		AppointmentID: "appt-1",
		PatientID:     "patient-1",
		Type:          types.NotificationReminder24h,
		Status:        status,
		Reason:        reason,
	}
}

func TestRecord_AssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &mockAttemptStore{}
	l := New(store, testDedupe(), types.FixedClock{T: now}, types.NopLogger{})

	written, err := l.Record(context.Background(), newAttempt(types.AttemptSucceeded, types.ReasonSent))
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if !written {
		t.Fatal("expected row to be written")
	}
	if len(store.attempts) != 1 {
		t.Fatalf("expected 1 stored attempt, got %d", len(store.attempts))
	}
	if store.attempts[0].ID == "" {
		t.Error("expected an assigned ID")
	}
	if !store.attempts[0].AttemptedAt.Equal(now) {
		t.Errorf("AttemptedAt = %v, want %v", store.attempts[0].AttemptedAt, now)
	}
}

func TestRecord_SuppressesRecurringQuietHoursSkip(t *testing.T) {
	base := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	store := &mockAttemptStore{}

	l := New(store, testDedupe(), types.FixedClock{T: base}, types.NopLogger{})
	written, err := l.Record(context.Background(), newAttempt(types.AttemptSkippedQuietHours, types.ReasonQuietHours))
	if err != nil || !written {
		t.Fatalf("first record: written=%v err=%v", written, err)
	}

	// Next tick, 30 minutes later: identical (status, reason) inside the
	// 1h quiet-hours window must be dropped.
	l = New(store, testDedupe(), types.FixedClock{T: base.Add(30 * time.Minute)}, types.NopLogger{})
	written, err = l.Record(context.Background(), newAttempt(types.AttemptSkippedQuietHours, types.ReasonQuietHours))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if written {
		t.Error("expected suppression inside the dedup window")
	}
	if len(store.attempts) != 1 {
		t.Fatalf("expected 1 stored attempt, got %d", len(store.attempts))
	}

	// Past the window the row is recorded again.
	l = New(store, testDedupe(), types.FixedClock{T: base.Add(61 * time.Minute)}, types.NopLogger{})
	written, err = l.Record(context.Background(), newAttempt(types.AttemptSkippedQuietHours, types.ReasonQuietHours))
	if err != nil || !written {
		t.Fatalf("third record: written=%v err=%v", written, err)
	}
	if len(store.attempts) != 2 {
		t.Fatalf("expected 2 stored attempts, got %d", len(store.attempts))
	}
}

func TestRecord_StateTransitionAlwaysRecorded(t *testing.T) {
	base := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	store := &mockAttemptStore{}

	l := New(store, testDedupe(), types.FixedClock{T: base}, types.NopLogger{})
	if _, err := l.Record(context.Background(), newAttempt(types.AttemptSkippedQuietHours, types.ReasonQuietHours)); err != nil {
		t.Fatal(err)
	}

	// A different status a minute later must not be suppressed.
	l = New(store, testDedupe(), types.FixedClock{T: base.Add(time.Minute)}, types.NopLogger{})
	written, err := l.Record(context.Background(), newAttempt(types.AttemptFailedWebhook, types.ReasonNetworkError))
	if err != nil || !written {
		t.Fatalf("transition record: written=%v err=%v", written, err)
	}
}

func TestRecord_SuccessNeverSuppressed(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &mockAttemptStore{}

	l := New(store, testDedupe(), types.FixedClock{T: base}, types.NopLogger{})
	if _, err := l.Record(context.Background(), newAttempt(types.AttemptSucceeded, types.ReasonSent)); err != nil {
		t.Fatal(err)
	}

	l = New(store, testDedupe(), types.FixedClock{T: base.Add(time.Minute)}, types.NopLogger{})
	written, err := l.Record(context.Background(), newAttempt(types.AttemptSucceeded, types.ReasonSent))
	if err != nil || !written {
		t.Fatalf("success record: written=%v err=%v", written, err)
	}
	if len(store.attempts) != 2 {
		t.Fatalf("expected 2 stored attempts, got %d", len(store.attempts))
	}
}

func TestRecord_DifferentReasonNotSuppressed(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &mockAttemptStore{}

	l := New(store, testDedupe(), types.FixedClock{T: base}, types.NopLogger{})
	if _, err := l.Record(context.Background(), newAttempt(types.AttemptFailedPrecondition, types.ReasonPatientNotFound)); err != nil {
		t.Fatal(err)
	}

	l = New(store, testDedupe(), types.FixedClock{T: base.Add(time.Minute)}, types.NopLogger{})
	written, err := l.Record(context.Background(), newAttempt(types.AttemptFailedPrecondition, types.ReasonQuietHoursInvalid))
	if err != nil || !written {
		t.Fatalf("different-reason record: written=%v err=%v", written, err)
	}
}

func TestRecord_PropagatesStoreErrors(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	store := &mockAttemptStore{latestErr: errors.New("connection reset")}
	l := New(store, testDedupe(), types.FixedClock{T: now}, types.NopLogger{})
	if _, err := l.Record(context.Background(), newAttempt(types.AttemptSucceeded, types.ReasonSent)); err == nil {
		t.Error("expected error from Latest to propagate")
	}

	store = &mockAttemptStore{insertErr: errors.New("insert failed")}
	l = New(store, testDedupe(), types.FixedClock{T: now}, types.NopLogger{})
	if _, err := l.Record(context.Background(), newAttempt(types.AttemptSucceeded, types.ReasonSent)); err == nil {
		t.Error("expected error from Insert to propagate")
	}
}
