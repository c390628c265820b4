package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	fleet "fleet-cloud/internal/fleet/domain"
)

const defaultSitesTable = "sites"

// SiteRepository is a Postgres implementation for sites.
type SiteRepository struct {
	db    *sql.DB
	table string
}

// SiteOption configures the repository.
type SiteOption func(*SiteRepository)

// WithSitesTable overrides the default table name.
func WithSitesTable(table string) SiteOption {
	return func(repo *SiteRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewSiteRepository constructs a repository.
func NewSiteRepository(db *sql.DB, opts ...SiteOption) (*SiteRepository, error) {
	if db == nil {
		return nil, errors.New("site repo: nil db")
	}
	repo := &SiteRepository{db: db, table: defaultSitesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// Get loads a site by id, or nil when absent.
func (r *SiteRepository) Get(ctx context.Context, id string) (*fleet.Site, error) {
	if id == "" {
		return nil, errors.New("site repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, lat, lng, radius_m, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var site fleet.Site
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&site.ID,
		&site.TenantID,
		&site.Name,
		&site.Lat,
		&site.Lng,
		&site.RadiusM,
		&site.CreatedAt,
		&site.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	site.CreatedAt = site.CreatedAt.UTC()
	site.UpdatedAt = site.UpdatedAt.UTC()
	return &site, nil
}

// ListByTenant returns all sites for a tenant ordered by name.
func (r *SiteRepository) ListByTenant(ctx context.Context, tenantID string) ([]fleet.Site, error) {
	if tenantID == "" {
		return nil, errors.New("site repo: empty tenant id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, lat, lng, radius_m, created_at, updated_at
FROM %s
WHERE tenant_id = $1
ORDER BY name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []fleet.Site
	for rows.Next() {
		var site fleet.Site
		if err := rows.Scan(
			&site.ID,
			&site.TenantID,
			&site.Name,
			&site.Lat,
			&site.Lng,
			&site.RadiusM,
			&site.CreatedAt,
			&site.UpdatedAt,
		); err != nil {
			return nil, err
		}
		site.CreatedAt = site.CreatedAt.UTC()
		site.UpdatedAt = site.UpdatedAt.UTC()
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sites, nil
}

// Save upserts a site.
func (r *SiteRepository) Save(ctx context.Context, site fleet.Site) error {
	if err := site.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	lat,
	lng,
	radius_m
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	radius_m = EXCLUDED.radius_m,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		site.ID,
		site.TenantID,
		site.Name,
		site.Lat,
		site.Lng,
		site.RadiusM,
	)
	return err
}
