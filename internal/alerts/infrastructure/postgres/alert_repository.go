package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "fleet-cloud/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db, table: defaultAlertsTable}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.TenantID == "" || alert.VehicleID == "" || alert.Type == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, tenant_id, vehicle_id, type, severity, message, status,
	acked_at, resolved_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11
)`,
		alert.ID,
		alert.TenantID,
		alert.VehicleID,
		alert.Type,
		alert.Severity,
		alert.Message,
		alert.Status,
		nullableTime(alert.AckedAt),
		nullableTime(alert.ResolvedAt),
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	return err
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, vehicle_id, type, severity, message, status,
	acked_at, resolved_at, created_at, updated_at
FROM alerts
WHERE id = $1`, id)
	return scanAlert(row)
}

// UpdateStatus moves an alert to a new status with the matching timestamp
// column. Callers enforce forward-only transitions before calling.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	switch status {
	case alerts.StatusAcknowledged:
		_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1, acked_at = $2, updated_at = $2
WHERE id = $3`, status, at, id)
		return err
	case alerts.StatusResolved:
		_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1, resolved_at = $2, updated_at = $2
WHERE id = $3`, status, at, id)
		return err
	default:
		return errors.New("alert repo: unsupported status")
	}
}

// List returns alerts for a tenant, newest first, optionally filtered by
// status and vehicle.
func (r *AlertRepository) List(ctx context.Context, tenantID, status, vehicleID string, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("alert repo: tenant id required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
SELECT id, tenant_id, vehicle_id, type, severity, message, status,
	acked_at, resolved_at, created_at, updated_at
FROM alerts
WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	if vehicleID != "" {
		args = append(args, vehicleID)
		if status != "" {
			query += ` AND vehicle_id = $3`
		} else {
			query += ` AND vehicle_id = $2`
		}
	}
	args = append(args, limit)
	switch len(args) {
	case 2:
		query += ` ORDER BY created_at DESC LIMIT $2`
	case 3:
		query += ` ORDER BY created_at DESC LIMIT $3`
	default:
		query += ` ORDER BY created_at DESC LIMIT $4`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *alert)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row *sql.Row) (*alerts.Alert, error) {
	alert, err := scanAlertRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

func scanAlertRow(scanner rowScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var ackedAt, resolvedAt sql.NullTime
	if err := scanner.Scan(
		&alert.ID,
		&alert.TenantID,
		&alert.VehicleID,
		&alert.Type,
		&alert.Severity,
		&alert.Message,
		&alert.Status,
		&ackedAt,
		&resolvedAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if ackedAt.Valid {
		alert.AckedAt = ackedAt.Time.UTC()
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time.UTC()
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	return &alert, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
