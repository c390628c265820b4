package fleet

import (
	"context"
	"errors"
	"time"
)

// Site is a named circular operating zone for a tenant's fleet.
type Site struct {
	ID        string
	TenantID  string
	Name      string
	Lat       float64
	Lng       float64
	RadiusM   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks site invariants.
func (s Site) Validate() error {
	if s.ID == "" {
		return errors.New("site: empty id")
	}
	if s.TenantID == "" {
		return errors.New("site: empty tenant id")
	}
	if s.Name == "" {
		return errors.New("site: empty name")
	}
	if s.Lat < -90 || s.Lat > 90 {
		return errors.New("site: lat out of range")
	}
	if s.Lng < -180 || s.Lng > 180 {
		return errors.New("site: lng out of range")
	}
	if s.RadiusM <= 0 {
		return errors.New("site: non-positive radius")
	}
	return nil
}

// SiteRepository manages site persistence.
type SiteRepository interface {
	Get(ctx context.Context, id string) (*Site, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Site, error)
	Save(ctx context.Context, site Site) error
}
