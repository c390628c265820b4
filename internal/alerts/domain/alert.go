package alerts

import (
	"errors"
	"time"
)

// Alert statuses. Transitions only move forward: new → acknowledged →
// resolved; resolved is terminal.
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert types emitted by the detectors.
const (
	TypeOverspeed    = "overspeed"
	TypeFuelDrop     = "fuel_drop"
	TypeGeofenceExit = "geofence_exit"
)

var (
	// ErrNotFound indicates the alert does not exist.
	ErrNotFound = errors.New("alerts: not found")
	// ErrInvalidTransition indicates a backwards status transition.
	ErrInvalidTransition = errors.New("alerts: invalid status transition")
)

// Alert is one detector firing persisted for operator follow-up.
type Alert struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	VehicleID  string    `json:"vehicle_id"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	AckedAt    time.Time `json:"acked_at,omitempty"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CanTransition reports whether the status may move to the target.
func (a Alert) CanTransition(target string) bool {
	switch a.Status {
	case StatusNew:
		return target == StatusAcknowledged || target == StatusResolved
	case StatusAcknowledged:
		return target == StatusResolved
	default:
		return false
	}
}
