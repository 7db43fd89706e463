package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"remindpoint/internal/types"
)

// AlertRepository provides access to the alert_subscriptions (read-only) and
// alert_dedupe (upsert) tables. Subscriptions are managed out-of-band; the
// Alert Monitor only reads them. Dedupe rows are one per
// (scope, alert_type) key and only the Alert Monitor writes them.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// ListSubscriptions returns all alert subscriptions.
func (r *AlertRepository) ListSubscriptions(ctx context.Context) ([]types.AlertSubscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, destination, address, min_severity, COALESCE(tenant_id, '')
		 FROM alert_subscriptions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alert subscriptions", err)
	}
	defer rows.Close()

	var subs []types.AlertSubscription
	for rows.Next() {
		var s types.AlertSubscription
		var dest, sev string
		if err := rows.Scan(&s.ID, &dest, &s.Address, &sev, &s.TenantID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		s.Destination = types.AlertDestinationType(dest)
		s.MinSeverity = types.Severity(sev)
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating subscription rows", err)
	}
	return subs, nil
}

// GetDedupe returns the dedupe record for the (scope, alertType) key, or nil
// when no alert of this kind has ever been sent.
func (r *AlertRepository) GetDedupe(ctx context.Context, scope string, alertType types.AlertType) (*types.AlertDedupeRecord, error) {
	var rec types.AlertDedupeRecord
	var sev string
	err := r.db.QueryRow(ctx,
		`SELECT scope, alert_type, last_sent_at, last_severity
		 FROM alert_dedupe
		 WHERE scope = $1 AND alert_type = $2`,
		scope, string(alertType),
	).Scan(&rec.Scope, (*string)(&rec.AlertType), &rec.LastSentAt, &sev)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load alert dedupe record", err)
	}
	rec.LastSeverity = types.Severity(sev)
	return &rec, nil
}

// UpsertDedupe records an alert send for the (scope, alertType) key: created
// on first send, patched on every subsequent send.
func (r *AlertRepository) UpsertDedupe(ctx context.Context, scope string, alertType types.AlertType, sentAt time.Time, severity types.Severity) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_dedupe (scope, alert_type, last_sent_at, last_severity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (scope, alert_type) DO UPDATE
		   SET last_sent_at = EXCLUDED.last_sent_at,
		       last_severity = EXCLUDED.last_severity`,
		scope, string(alertType), sentAt, string(severity),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert alert dedupe record", err)
	}
	return nil
}
