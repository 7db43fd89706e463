package types

// NotificationType identifies which reminder message an attempt is for.
type NotificationType string

const (
	// NotificationReminder24h is the day-before appointment reminder.
	NotificationReminder24h NotificationType = "24h"

	// NotificationReminder1h is the hour-before appointment reminder.
	NotificationReminder1h NotificationType = "1h"

	// NotificationBookingConfirmation is sent immediately after booking.
	NotificationBookingConfirmation NotificationType = "booking_confirmation"

	// NotificationCancellation is sent when an appointment is cancelled.
	NotificationCancellation NotificationType = "cancellation"
)

// ReminderTypes lists the window-driven notification types, in dispatch order.
var ReminderTypes = []NotificationType{
	NotificationReminder24h,
	NotificationReminder1h,
}

// AttemptStatus is the terminal outcome of one scheduler evaluation for an
// (appointment, notification type) pair during one poll tick.
type AttemptStatus string

const (
	AttemptSucceeded                  AttemptStatus = "succeeded"
	AttemptFailedWebhook              AttemptStatus = "failed_webhook"
	AttemptFailedPrecondition         AttemptStatus = "failed_precondition"
	AttemptFailedProcessing           AttemptStatus = "failed_processing"
	AttemptSkippedQuietHours          AttemptStatus = "skipped_quiet_hours"
	AttemptSkippedAlreadySent         AttemptStatus = "skipped_already_sent"
	AttemptSkippedBookingConfirmation AttemptStatus = "skipped_booking_confirmation"
)

// ReasonCode explains why an attempt ended in its status. Reason codes are
// stable identifiers surfaced to operators in the audit ledger and alerts.
type ReasonCode string

const (
	ReasonSent                  ReasonCode = "SENT"
	ReasonAlreadySent           ReasonCode = "ALREADY_SENT"
	ReasonBookedInWindow        ReasonCode = "BOOKED_IN_WINDOW"
	ReasonQuietHours            ReasonCode = "QUIET_HOURS"
	ReasonQuietHoursInvalid     ReasonCode = "QUIET_HOURS_CONFIG_INVALID"
	ReasonPatientNotFound       ReasonCode = "PATIENT_NOT_FOUND"
	ReasonEndpointNotConfigured ReasonCode = "ENDPOINT_NOT_CONFIGURED"
	ReasonTimeout               ReasonCode = "TIMEOUT"
	ReasonNetworkError          ReasonCode = "NETWORK_ERROR"
	ReasonHTTPClientError       ReasonCode = "HTTP_CLIENT_ERROR"
	ReasonHTTPRetryExhausted    ReasonCode = "HTTP_RETRY_EXHAUSTED"
	ReasonProcessingError       ReasonCode = "PROCESSING_ERROR"
)

// AppointmentStatus is the lifecycle state of an appointment in the external
// store. Cancellation is a status transition, not a delete, so historical
// attempts remain attributable.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// AlertType identifies an anomaly condition detected by the Alert Monitor.
type AlertType string

const (
	AlertDeliveryFailureSpike   AlertType = "delivery_failure_spike"
	AlertPreconditionSpike      AlertType = "precondition_failure_spike"
	AlertMissingAttempts        AlertType = "reminder_attempts_missing"
	AlertCancellationSMSMissing AlertType = "cancellation_sms_missing"
)

// Severity ranks alert urgency. Higher values page harder.
type Severity string

const (
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric ordering of a severity. Unknown severities rank
// lowest so a malformed subscription never swallows a critical alert.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarn:
		return 1
	default:
		return 0
	}
}

// AlertDestinationType identifies how an alert subscription is delivered.
type AlertDestinationType string

const (
	// DestinationChatWebhook delivers alerts via an HTTP chat webhook
	// (Slack, Google Chat, or a generic JSON endpoint).
	DestinationChatWebhook AlertDestinationType = "chat_webhook"
)
