package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

const defaultTelemetryTable = "telemetry_events"

// EventRepository is a Postgres implementation of the durable telemetry
// store: a time-partitioned append log keyed by device and time, the system
// of record for historical query.
type EventRepository struct {
	db    *sql.DB
	table string
}

// NewEventRepository constructs a repository with the default table name.
func NewEventRepository(db *sql.DB, opts ...RepositoryOption) *EventRepository {
	repo := &EventRepository{db: db, table: defaultTelemetryTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*EventRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *EventRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert appends one accepted event. The write is best-effort relative to
// the ingest response: callers log failures instead of rolling back the
// dedup registration or the stream entry.
func (r *EventRepository) Insert(ctx context.Context, event telemetry.Event) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if event.DeviceID == "" || event.Timestamp.IsZero() {
		return errors.New("telemetry repo: invalid event")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	tenant_id,
	device_id,
	ts,
	lat,
	lng,
	speed,
	heading,
	altitude,
	fuel_level,
	engine_temp,
	rpm,
	engine_hours,
	odometer,
	ignition,
	events,
	received_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		event.TenantID,
		event.DeviceID,
		event.Timestamp.UTC(),
		event.Location.Lat,
		event.Location.Lng,
		event.Location.Speed,
		nullFloat(event.Location.Heading),
		nullFloat(event.Location.Altitude),
		nullFloat(event.Metrics.FuelLevel),
		nullFloat(event.Metrics.EngineTemp),
		nullFloat(event.Metrics.RPM),
		nullFloat(event.Metrics.EngineHours),
		nullFloat(event.Metrics.Odometer),
		nullBool(event.Metrics.Ignition),
		tagArray(event.Events),
		time.Now().UTC(),
	)
	return err
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullBool(value *bool) sql.NullBool {
	if value == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *value, Valid: true}
}

// tagArray renders free-form event tags as a Postgres text array literal.
// Tags are device-supplied, so backslashes and double quotes must be
// escaped or the literal is rejected and the write fails on every retry.
func tagArray(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	quoted := make([]string, len(tags))
	for i, tag := range tags {
		tag = strings.ReplaceAll(tag, `\`, `\\`)
		tag = strings.ReplaceAll(tag, `"`, `\"`)
		quoted[i] = `"` + tag + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}
