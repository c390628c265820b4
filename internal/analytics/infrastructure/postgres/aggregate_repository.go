package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	analytics "fleet-cloud/internal/analytics/domain"
)

const defaultUtilizationTable = "utilization_daily"

// UtilizationRepository accumulates per-day utilization rows. Writes are
// additive upserts, so replayed ticks for the same day keep summing and
// the row never moves backwards.
type UtilizationRepository struct {
	db    *sql.DB
	table string
}

// UtilizationOption configures the repository.
type UtilizationOption func(*UtilizationRepository)

// WithUtilizationTable overrides the default table name.
func WithUtilizationTable(table string) UtilizationOption {
	return func(repo *UtilizationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewUtilizationRepository creates a repository using the default table name.
func NewUtilizationRepository(db *sql.DB, opts ...UtilizationOption) (*UtilizationRepository, error) {
	if db == nil {
		return nil, errors.New("utilization repo: nil db")
	}
	repo := &UtilizationRepository{db: db, table: defaultUtilizationTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Apply adds one tick's contribution to the machine's daily row.
func (r *UtilizationRepository) Apply(ctx context.Context, tenantID, machineID string, tick analytics.UtilizationTick) error {
	if tenantID == "" || machineID == "" {
		return errors.New("utilization repo: empty tenant or machine id")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	tenant_id,
	machine_id,
	day,
	total_distance,
	engine_on_seconds,
	idle_seconds
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (tenant_id, machine_id, day)
DO UPDATE SET
	total_distance = %s.total_distance + EXCLUDED.total_distance,
	engine_on_seconds = %s.engine_on_seconds + EXCLUDED.engine_on_seconds,
	idle_seconds = %s.idle_seconds + EXCLUDED.idle_seconds,
	updated_at = NOW()`, r.table, r.table, r.table, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		tenantID,
		machineID,
		tick.Day,
		tick.DistanceDelta,
		tick.EngineOnSecs,
		tick.IdleSecs,
	)
	return err
}

// Range lists the daily rows for a tenant within [from, to).
func (r *UtilizationRepository) Range(ctx context.Context, tenantID string, from, to time.Time) ([]analytics.DailyUtilization, error) {
	if tenantID == "" {
		return nil, errors.New("utilization repo: empty tenant id")
	}

	query := fmt.Sprintf(`
SELECT
	tenant_id,
	machine_id,
	day,
	total_distance,
	engine_on_seconds,
	idle_seconds
FROM %s
WHERE tenant_id = $1
	AND day >= $2
	AND day < $3
ORDER BY machine_id ASC, day ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []analytics.DailyUtilization
	for rows.Next() {
		var row analytics.DailyUtilization
		if err := rows.Scan(
			&row.TenantID,
			&row.MachineID,
			&row.Day,
			&row.TotalDistance,
			&row.EngineOnSecs,
			&row.IdleSecs,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
