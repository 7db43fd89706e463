package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"remindpoint/internal/types"
)

// AttemptRepository provides data access for the reminder_attempts table:
// the append-only audit ledger. Rows are inserted by the Reminder Scheduler
// and read by the dedup checks, the Alert Monitor, and the operator API.
// There is deliberately no UPDATE or DELETE on this table.
type AttemptRepository struct {
	db DBTX
}

// NewAttemptRepository creates a new AttemptRepository backed by the given
// database connection (pool or transaction).
func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `id, tenant_id, appointment_id, patient_id, type,
	target_time, attempted_at, status, reason, note, detail`

// Insert appends one attempt row. The caller sets all fields including the ID.
func (r *AttemptRepository) Insert(ctx context.Context, a *types.ReminderAttempt) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO reminder_attempts
		 (id, tenant_id, appointment_id, patient_id, type, target_time,
		  attempted_at, status, reason, note, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID,
		a.TenantID,
		a.AppointmentID,
		a.PatientID,
		string(a.Type),
		a.TargetTime,
		a.AttemptedAt,
		string(a.Status),
		string(a.Reason),
		nilIfEmpty(a.Note),
		nilIfEmptyBytes(a.Detail),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert reminder attempt", err)
	}
	return nil
}

// HasSucceeded reports whether a succeeded row exists for the pair.
// Leverages the partial index on (appointment_id, type) WHERE
// status = 'succeeded'.
func (r *AttemptRepository) HasSucceeded(ctx context.Context, appointmentID string, t types.NotificationType) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM reminder_attempts
			WHERE appointment_id = $1 AND type = $2 AND status = 'succeeded'
		 )`,
		appointmentID, string(t),
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check succeeded attempt", err)
	}
	return exists, nil
}

// Latest returns the most recent attempt for the pair, or nil when the pair
// has never been attempted.
func (r *AttemptRepository) Latest(ctx context.Context, appointmentID string, t types.NotificationType) (*types.ReminderAttempt, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM reminder_attempts
		 WHERE appointment_id = $1 AND type = $2
		 ORDER BY attempted_at DESC
		 LIMIT 1`,
		appointmentID, string(t),
	)

	a, err := scanAttemptRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest attempt", err)
	}
	return a, nil
}

// ListByAppointment returns all attempts for one appointment, tenant-scoped,
// newest first. Used by the operator "why wasn't this reminder sent" view.
func (r *AttemptRepository) ListByAppointment(ctx context.Context, tenantID, appointmentID string) ([]*types.ReminderAttempt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM reminder_attempts
		 WHERE tenant_id = $1 AND appointment_id = $2
		 ORDER BY attempted_at DESC`,
		tenantID, appointmentID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list attempts by appointment", err)
	}
	return collectAttempts(rows)
}

// ListByStatusSince returns attempts with the given status recorded at or
// after since, newest first, capped at limit.
func (r *AttemptRepository) ListByStatusSince(ctx context.Context, status types.AttemptStatus, since time.Time, limit int) ([]*types.ReminderAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM reminder_attempts
		 WHERE status = $1 AND attempted_at >= $2
		 ORDER BY attempted_at DESC
		 LIMIT $3`,
		string(status), since, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list attempts by status", err)
	}
	return collectAttempts(rows)
}

// ListSince returns all attempts recorded at or after since, newest first,
// capped at limit.
func (r *AttemptRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*types.ReminderAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM reminder_attempts
		 WHERE attempted_at >= $1
		 ORDER BY attempted_at DESC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list attempts since", err)
	}
	return collectAttempts(rows)
}

// CountByStatusSince counts attempts with the given status recorded at or
// after since. Used by the Alert Monitor spike detectors.
func (r *AttemptRepository) CountByStatusSince(ctx context.Context, status types.AttemptStatus, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reminder_attempts
		 WHERE status = $1 AND attempted_at >= $2`,
		string(status), since,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count attempts by status", err)
	}
	return count, nil
}

// ReasonBreakdownSince returns per-reason counts for attempts with the given
// status recorded at or after since, most frequent first. Used to enrich
// precondition-failure alerts for faster diagnosis.
func (r *AttemptRepository) ReasonBreakdownSince(ctx context.Context, status types.AttemptStatus, since time.Time) (map[types.ReasonCode]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT reason, COUNT(*) AS n
		 FROM reminder_attempts
		 WHERE status = $1 AND attempted_at >= $2
		 GROUP BY reason
		 ORDER BY n DESC`,
		string(status), since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate attempt reasons", err)
	}
	defer rows.Close()

	breakdown := make(map[types.ReasonCode]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reason row", err)
		}
		breakdown[types.ReasonCode(reason)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reason rows", err)
	}
	return breakdown, nil
}

// AppointmentIDsWithAttemptsSince returns the distinct appointment IDs that
// have any attempt of the given type recorded at or after since. The silent
// scheduler detector diffs this set against the currently eligible set.
func (r *AttemptRepository) AppointmentIDsWithAttemptsSince(ctx context.Context, t types.NotificationType, since time.Time) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT appointment_id
		 FROM reminder_attempts
		 WHERE type = $1 AND attempted_at >= $2`,
		string(t), since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list attempted appointment ids", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan appointment id", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating appointment ids", err)
	}
	return ids, nil
}

// collectAttempts drains rows into a slice, closing the result set.
func collectAttempts(rows pgx.Rows) ([]*types.ReminderAttempt, error) {
	defer rows.Close()

	var results []*types.ReminderAttempt
	for rows.Next() {
		a, err := scanAttemptRow(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan attempt row", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating attempt rows", err)
	}
	return results, nil
}

// scanAttemptRow scans one reminder_attempts row from either a pgx.Row or
// pgx.Rows. Nullable columns use pointer intermediates.
func scanAttemptRow(row pgx.Row) (*types.ReminderAttempt, error) {
	var (
		a      types.ReminderAttempt
		typ    string
		status string
		reason string
		note   *string
		detail []byte
	)

	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.AppointmentID,
		&a.PatientID,
		&typ,
		&a.TargetTime,
		&a.AttemptedAt,
		&status,
		&reason,
		&note,
		&detail,
	)
	if err != nil {
		return nil, err
	}

	a.Type = types.NotificationType(typ)
	a.Status = types.AttemptStatus(status)
	a.Reason = types.ReasonCode(reason)
	if note != nil {
		a.Note = *note
	}
	if len(detail) > 0 {
		a.Detail = detail
	}
	return &a, nil
}

// nilIfEmpty converts an empty string to nil for nullable columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nilIfEmptyBytes converts an empty byte slice to nil for nullable JSONB.
func nilIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
