package audit

import (
	"context"
	"database/sql"
	"errors"
)

// Repository appends audit entries to the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log fills entry defaults and inserts the row.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry.fill()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, tenant_id, actor, action, resource_type, resource_id, vehicle_id,
	ip, user_agent, metadata, payload_digest, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, entry.ID, entry.TenantID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID, entry.VehicleID,
		entry.IP, entry.UserAgent, entry.Metadata, entry.PayloadDigest, entry.CreatedAt)
	return err
}
