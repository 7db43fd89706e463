package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"remindpoint/internal/core"
	"remindpoint/internal/scheduler"
	"remindpoint/internal/types"
)

// BookingSuppressor is the scheduler hook the bookings handler needs.
// Satisfied by *scheduler.Reminders.
type BookingSuppressor interface {
	SuppressIfInWindow(ctx context.Context, in scheduler.BookingInput) (bool, error)
}

// BookingsHandler exposes the booking-time suppression hook to the
// appointment layer.
type BookingsHandler struct {
	suppressor BookingSuppressor
	logger     *slog.Logger
}

// NewBookingsHandler creates a BookingsHandler.
func NewBookingsHandler(suppressor BookingSuppressor, logger *slog.Logger) *BookingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingsHandler{
		suppressor: suppressor,
		logger:     logger,
	}
}

// RegisterRoutes mounts the booking endpoints.
func (h *BookingsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings/confirmed", h.HandleBookingConfirmed)
}

// bookingConfirmedRequest is the POST /v1/bookings/confirmed body.
type bookingConfirmedRequest struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	TenantID      string `json:"tenant_id"`
	ScheduledAt   string `json:"scheduled_at"`
}

// bookingConfirmedResponse reports whether the day-before reminder was
// suppressed for the new appointment.
type bookingConfirmedResponse struct {
	Suppressed bool `json:"suppressed"`
}

// HandleBookingConfirmed handles POST /v1/bookings/confirmed. Called by the
// appointment layer right after a booking so an appointment created inside
// the day-before window does not get a redundant reminder on the next tick.
func (h *BookingsHandler) HandleBookingConfirmed(w http.ResponseWriter, r *http.Request) {
	var req bookingConfirmedRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	for name, val := range map[string]string{
		"appointment_id": req.AppointmentID,
		"patient_id":     req.PatientID,
		"tenant_id":      req.TenantID,
		"scheduled_at":   req.ScheduledAt,
	} {
		if val == "" {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				name+" is required",
				nil,
			))
			return
		}
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidTime,
			"scheduled_at must be an RFC 3339 timestamp",
			err,
		))
		return
	}

	suppressed, err := h.suppressor.SuppressIfInWindow(r.Context(), scheduler.BookingInput{
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		TenantID:      req.TenantID,
		ScheduledAt:   scheduledAt,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: bookingConfirmedResponse{Suppressed: suppressed},
	})
}
