// Package handlers contains the HTTP handler implementations for the
// operator API: attempt-ledger queries and the booking-time suppression
// hook.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"remindpoint/internal/core"
	"remindpoint/internal/types"
)

// defaultListLookback bounds unscoped attempt listings.
const defaultListLookback = 24 * time.Hour

// AttemptReader is the ledger read surface the attempts handler needs.
// Satisfied by *db.AttemptRepository.
type AttemptReader interface {
	ListByAppointment(ctx context.Context, tenantID, appointmentID string) ([]*types.ReminderAttempt, error)
	ListByStatusSince(ctx context.Context, status types.AttemptStatus, since time.Time, limit int) ([]*types.ReminderAttempt, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*types.ReminderAttempt, error)
}

// AttemptsHandler serves read-only views over the attempt ledger.
type AttemptsHandler struct {
	attempts AttemptReader
	clock    types.Clock
	logger   *slog.Logger
}

// NewAttemptsHandler creates an AttemptsHandler.
func NewAttemptsHandler(attempts AttemptReader, clock types.Clock, logger *slog.Logger) *AttemptsHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptsHandler{
		attempts: attempts,
		clock:    clock,
		logger:   logger,
	}
}

// RegisterRoutes mounts the attempt endpoints. Auth middleware is already
// applied by the router.
func (h *AttemptsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/appointments/{appointmentID}/attempts", h.HandleListByAppointment)
	r.Get("/attempts", h.HandleList)
}

// HandleListByAppointment handles GET /v1/appointments/{appointmentID}/attempts.
// Returns the full attempt history for one appointment, newest first.
func (h *AttemptsHandler) HandleListByAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")
	if appointmentID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"appointment id is required",
			nil,
		))
		return
	}

	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"tenant query parameter is required",
			nil,
		))
		return
	}

	attempts, err := h.attempts.ListByAppointment(r.Context(), tenantID, appointmentID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: attempts})
}

// HandleList handles GET /v1/attempts?status=&since=&limit=.
// Status and since are optional; since defaults to the last 24 hours.
func (h *AttemptsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since := h.clock.Now().Add(-defaultListLookback)
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidTime,
				"since must be an RFC 3339 timestamp",
				err,
			))
			return
		}
		since = parsed
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidEnum,
				"limit must be a positive integer",
				err,
			))
			return
		}
		limit = parsed
	}

	var (
		attempts []*types.ReminderAttempt
		err      error
	)
	if raw := q.Get("status"); raw != "" {
		status := types.AttemptStatus(raw)
		if !validStatus(status) {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidEnum,
				"unknown attempt status: "+raw,
				nil,
			))
			return
		}
		attempts, err = h.attempts.ListByStatusSince(r.Context(), status, since, limit)
	} else {
		attempts, err = h.attempts.ListSince(r.Context(), since, limit)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: attempts})
}

func validStatus(s types.AttemptStatus) bool {
	switch s {
	case types.AttemptSucceeded,
		types.AttemptFailedWebhook,
		types.AttemptFailedPrecondition,
		types.AttemptFailedProcessing,
		types.AttemptSkippedQuietHours,
		types.AttemptSkippedAlreadySent,
		types.AttemptSkippedBookingConfirmation:
		return true
	}
	return false
}
