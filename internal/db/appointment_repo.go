package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"remindpoint/internal/types"
)

// AppointmentRepository provides read-only access to the appointments and
// patients tables owned by the external booking system. The reminder core
// never mutates these tables; create/cancel flows live with the owner.
type AppointmentRepository struct {
	db DBTX
}

// NewAppointmentRepository creates a new AppointmentRepository backed by the
// given database connection (pool or transaction).
func NewAppointmentRepository(db DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, tenant_id, patient_id, scheduled_at, status, cancelled_at`

// ListScheduledBetween returns appointments whose scheduled time falls in
// [start, end) and whose status is still 'scheduled', ordered by scheduled
// time. This is the range query behind the eligibility windows.
func (r *AppointmentRepository) ListScheduledBetween(ctx context.Context, start, end time.Time) ([]*types.Appointment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE scheduled_at >= $1 AND scheduled_at < $2
		   AND status = 'scheduled'
		 ORDER BY scheduled_at`,
		start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scheduled appointments", err)
	}
	return collectAppointments(rows)
}

// ListCancelledBetween returns appointments cancelled in [start, end),
// ordered by cancellation time.
func (r *AppointmentRepository) ListCancelledBetween(ctx context.Context, start, end time.Time) ([]*types.Appointment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE status = 'cancelled'
		   AND cancelled_at >= $1 AND cancelled_at < $2
		 ORDER BY cancelled_at`,
		start, end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cancelled appointments", err)
	}
	return collectAppointments(rows)
}

// Get returns one appointment by ID, tenant-scoped. Returns a not-found
// AppError when no row matches.
func (r *AppointmentRepository) Get(ctx context.Context, tenantID, id string) (*types.Appointment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)

	a, err := scanAppointmentRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundAppointment, "appointment not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load appointment", err)
	}
	return a, nil
}

// GetPatient returns one patient by ID. Returns a not-found AppError when no
// row matches; the scheduler records this as a precondition failure.
func (r *AppointmentRepository) GetPatient(ctx context.Context, id string) (*types.Patient, error) {
	var p types.Patient
	err := r.db.QueryRow(ctx,
		`SELECT id, name, phone FROM patients WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPatient, "patient not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load patient", err)
	}
	return &p, nil
}

func collectAppointments(rows pgx.Rows) ([]*types.Appointment, error) {
	defer rows.Close()

	var results []*types.Appointment
	for rows.Next() {
		a, err := scanAppointmentRow(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan appointment row", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating appointment rows", err)
	}
	return results, nil
}

func scanAppointmentRow(row pgx.Row) (*types.Appointment, error) {
	var (
		a           types.Appointment
		status      string
		cancelledAt *time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.PatientID,
		&a.ScheduledAt,
		&status,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = types.AppointmentStatus(status)
	a.CancelledAt = cancelledAt
	return &a, nil
}
