package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	alerts "fleet-cloud/internal/alerts/domain"
	alertrepo "fleet-cloud/internal/alerts/infrastructure/postgres"
	"fleet-cloud/internal/observability/metrics"
	"fleet-cloud/internal/stream"
)

// EventTypeAlert tags alert entries on the derived alerts stream.
const EventTypeAlert = "alert.generated"

// AlertNotifier receives alert lifecycle events for live fan-out.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent is one lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service persists alerts, publishes them to the derived stream and
// enforces the forward-only status lifecycle.
type Service struct {
	repo     *alertrepo.AlertRepository
	bus      stream.Bus
	notifier AlertNotifier
	clock    Clock
	logger   *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs an alert service.
func NewService(repo *alertrepo.AlertRepository, bus stream.Bus, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{repo: repo, bus: bus, clock: systemClock{}, logger: logger}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateAlert persists one detector firing, then republishes it on the
// derived alerts stream for downstream consumers (push dispatch and the
// like). The republish is best-effort: the stored row is the record.
func (s *Service) CreateAlert(ctx context.Context, tenantID, vehicleID, alertType, severity, message string) (*alerts.Alert, error) {
	if tenantID == "" || vehicleID == "" || alertType == "" {
		return nil, errors.New("alerts: tenant, vehicle and type required")
	}

	now := s.clock.Now()
	alert := &alerts.Alert{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		VehicleID: vehicleID,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Status:    alerts.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}
	metrics.IncAlertEmitted(alertType, severity)

	if s.notifier != nil {
		s.notifier.Notify(ctx, AlertEvent{Type: "created", Alert: *alert})
	}
	if s.bus != nil {
		if _, err := s.bus.Publish(ctx, stream.AlertsStream, EventTypeAlert, alert); err != nil {
			s.logger.Printf("alerts: republish %s failed: %v", alert.ID, err)
		} else {
			metrics.IncStreamPublished(stream.AlertsStream)
		}
	}
	return alert, nil
}

// Acknowledge moves an alert from new to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) (*alerts.Alert, error) {
	return s.transition(ctx, id, alerts.StatusAcknowledged)
}

// Resolve moves an alert to its terminal state.
func (s *Service) Resolve(ctx context.Context, id string) (*alerts.Alert, error) {
	return s.transition(ctx, id, alerts.StatusResolved)
}

// List returns alerts for a tenant, optionally filtered.
func (s *Service) List(ctx context.Context, tenantID, status, vehicleID string, limit int) ([]alerts.Alert, error) {
	return s.repo.List(ctx, tenantID, status, vehicleID, limit)
}

func (s *Service) transition(ctx context.Context, id, target string) (*alerts.Alert, error) {
	if id == "" {
		return nil, errors.New("alerts: alert id required")
	}
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	if alert.Status == target {
		return alert, nil
	}
	if !alert.CanTransition(target) {
		return nil, alerts.ErrInvalidTransition
	}

	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, id, target, now); err != nil {
		return nil, err
	}
	alert.Status = target
	alert.UpdatedAt = now
	switch target {
	case alerts.StatusAcknowledged:
		alert.AckedAt = now
	case alerts.StatusResolved:
		alert.ResolvedAt = now
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, AlertEvent{Type: target, Alert: *alert})
	}
	return alert, nil
}
