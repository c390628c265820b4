package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	alerts "fleet-cloud/internal/alerts/domain"
	"fleet-cloud/internal/observability/metrics"
	"fleet-cloud/internal/stream"
	telemetry "fleet-cloud/internal/telemetry/domain"
)

// AlertCreator persists and publishes a new alert.
type AlertCreator interface {
	CreateAlert(ctx context.Context, tenantID, vehicleID, alertType, severity, message string) (*alerts.Alert, error)
}

// GeofenceStateStore tracks the per-device inside/outside flag.
type GeofenceStateStore interface {
	WasInside(ctx context.Context, deviceID string) (inside, known bool, err error)
	SetInside(ctx context.Context, deviceID string, inside bool) error
}

// Worker is the alerts consumer group over the raw telemetry stream. It
// applies its own rule set independently of the analytics group: a plain
// speed threshold and a transition-based geofence exit.
type Worker struct {
	service  AlertCreator
	states   GeofenceStateStore
	zones    []alerts.Geofence
	speedMax float64
	consumer string
	logger   *log.Logger
}

// NewWorker constructs the worker.
func NewWorker(service AlertCreator, states GeofenceStateStore, zones []alerts.Geofence, speedMax float64, consumer string, logger *log.Logger) (*Worker, error) {
	if service == nil {
		return nil, errors.New("alerts worker: nil service")
	}
	if states == nil {
		return nil, errors.New("alerts worker: nil geofence state store")
	}
	if speedMax <= 0 {
		speedMax = 110
	}
	if consumer == "" {
		consumer = "alerts-1"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		service:  service,
		states:   states,
		zones:    zones,
		speedMax: speedMax,
		consumer: consumer,
		logger:   logger,
	}, nil
}

// Run blocks consuming the telemetry stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, bus stream.Bus) error {
	return bus.Subscribe(ctx, stream.TelemetryStream, stream.AlertsGroup, w.consumer, w.Handle)
}

// Handle processes one stream entry. Infrastructure errors are returned so
// the entry stays pending for redelivery; rule outcomes never fail an entry.
func (w *Worker) Handle(ctx context.Context, entry stream.Entry) error {
	var event telemetry.Event
	if err := entry.DecodePayload(&event); err != nil {
		// Undecodable payloads would fail every redelivery; log and ack.
		w.logger.Printf("alerts worker: entry %s undecodable: %v", entry.ID, err)
		metrics.IncConsumerProcessed(stream.AlertsGroup, false)
		return nil
	}
	if !entry.InsertedAt.IsZero() {
		metrics.ObserveConsumerLag(stream.AlertsGroup, time.Since(entry.InsertedAt))
	}

	if err := w.applySpeedRule(ctx, event); err != nil {
		metrics.IncConsumerProcessed(stream.AlertsGroup, false)
		return err
	}
	if err := w.applyGeofenceRule(ctx, event); err != nil {
		metrics.IncConsumerProcessed(stream.AlertsGroup, false)
		return err
	}

	metrics.IncConsumerProcessed(stream.AlertsGroup, true)
	return nil
}

func (w *Worker) applySpeedRule(ctx context.Context, event telemetry.Event) error {
	if event.Location.Speed <= w.speedMax {
		return nil
	}
	message := fmt.Sprintf("vehicle %s moving at %.1f km/h (limit %.0f)", event.DeviceID, event.Location.Speed, w.speedMax)
	_, err := w.service.CreateAlert(ctx, event.TenantID, event.DeviceID, alerts.TypeOverspeed, alerts.SeverityCritical, message)
	return err
}

// applyGeofenceRule fires only on an inside→outside transition. Repeated
// samples on either side of the boundary are no-ops, so sampling frequency
// cannot cause alert storms.
func (w *Worker) applyGeofenceRule(ctx context.Context, event telemetry.Event) error {
	if len(w.zones) == 0 {
		return nil
	}

	isInside := alerts.AnyContains(w.zones, event.Location.Lat, event.Location.Lng)
	wasInside, known, err := w.states.WasInside(ctx, event.DeviceID)
	if err != nil {
		return err
	}

	if known && wasInside == isInside {
		return nil
	}

	if known && wasInside && !isInside {
		message := fmt.Sprintf("vehicle %s left its assigned zone at %.5f,%.5f", event.DeviceID, event.Location.Lat, event.Location.Lng)
		if _, err := w.service.CreateAlert(ctx, event.TenantID, event.DeviceID, alerts.TypeGeofenceExit, alerts.SeverityMedium, message); err != nil {
			return err
		}
	}

	// First sample seeds state; re-entry updates silently.
	return w.states.SetInside(ctx, event.DeviceID, isInside)
}
