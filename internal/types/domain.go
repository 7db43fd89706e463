// Package types defines the shared domain model for the remindpoint core:
// appointments and patients as read-only projections of the external store,
// the append-only reminder attempt ledger, and the alerting records owned by
// the Alert Monitor.
package types

import (
	"encoding/json"
	"time"
)

// Appointment is a read-only projection of an appointment row in the external
// store. The core never mutates appointments; cancellation is observed as a
// status transition with CancelledAt set.
//
// ScheduledAt is immutable once notifications have been scheduled against it.
type Appointment struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	PatientID   string            `json:"patient_id"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Status      AppointmentStatus `json:"status"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
}

// Patient is a read-only projection of the patient record needed to address
// an outbound SMS.
type Patient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ReminderAttempt is one row of the append-only audit ledger. Rows are never
// updated or deleted; corrections are new rows.
//
// TargetTime is a copy of the appointment's scheduled time at attempt time so
// the audit trail stays stable even if the appointment later changes.
//
// Invariant: for a given (AppointmentID, Type) pair at most one row may ever
// have Status == AttemptSucceeded; the ledger dedup check enforces this
// before every send.
type ReminderAttempt struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	AppointmentID string           `json:"appointment_id"`
	PatientID     string           `json:"patient_id"`
	Type          NotificationType `json:"type"`
	TargetTime    time.Time        `json:"target_time"`
	AttemptedAt   time.Time        `json:"attempted_at"`
	Status        AttemptStatus    `json:"status"`
	Reason        ReasonCode       `json:"reason"`
	Note          string           `json:"note,omitempty"`
	Detail        json.RawMessage  `json:"detail,omitempty"`
}

// AlertSubscription routes alerts to a destination. Subscriptions are managed
// out-of-band and read-only to the Alert Monitor. A nil/empty TenantID means
// the subscription is global (ops-wide).
type AlertSubscription struct {
	ID          string               `json:"id"`
	Destination AlertDestinationType `json:"destination"`
	Address     string               `json:"address"`
	MinSeverity Severity             `json:"min_severity"`
	TenantID    string               `json:"tenant_id,omitempty"`
}

// ScopeGlobal is the dedupe scope used for alerts without a tenant.
const ScopeGlobal = "global"

// AlertDedupeRecord tracks the last send for a (scope, alert type) condition.
// One row per key, upserted by the Alert Monitor only.
type AlertDedupeRecord struct {
	Scope        string    `json:"scope"` // tenant ID or "global"
	AlertType    AlertType `json:"alert_type"`
	LastSentAt   time.Time `json:"last_sent_at"`
	LastSeverity Severity  `json:"last_severity"`
}

// Alert is an anomaly raised by one Alert Monitor detector during one tick.
// TenantID is empty for pipeline-wide conditions.
type Alert struct {
	Type     AlertType       `json:"type"`
	Severity Severity        `json:"severity"`
	TenantID string          `json:"tenant_id,omitempty"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Detail   json.RawMessage `json:"detail,omitempty"`
	RaisedAt time.Time       `json:"raised_at"`
}

// Scope returns the dedupe scope for the alert's tenant.
func (a Alert) Scope() string {
	if a.TenantID == "" {
		return ScopeGlobal
	}
	return a.TenantID
}
