package application

import (
	"context"
	"errors"
	"log"
	"time"

	analytics "fleet-cloud/internal/analytics/domain"
	"fleet-cloud/internal/observability/metrics"
	"fleet-cloud/internal/stream"
	telemetry "fleet-cloud/internal/telemetry/domain"
)

// PrevStateStore keeps the last analyzed reading per device.
type PrevStateStore interface {
	Get(ctx context.Context, deviceID string) (*telemetry.PreviousState, error)
	Put(ctx context.Context, deviceID string, prev telemetry.PreviousState) error
}

// AggregateSink accumulates utilization ticks into daily rows.
type AggregateSink interface {
	Apply(ctx context.Context, tenantID, machineID string, tick analytics.UtilizationTick) error
}

// AlertSink receives detector findings.
type AlertSink interface {
	CreateAlert(ctx context.Context, tenantID, vehicleID, alertType, severity, message string) error
}

// Worker is the analytics consumer group over the raw telemetry stream:
// delta detectors against the previous reading, then incremental
// utilization aggregation, then the previous reading is replaced.
type Worker struct {
	prev     PrevStateStore
	agg      AggregateSink
	sink     AlertSink
	cfg      analytics.DetectorConfig
	consumer string
	logger   *log.Logger
}

// WorkerOption configures the worker.
type WorkerOption func(*Worker)

// WithDetectorConfig overrides the default thresholds.
func WithDetectorConfig(cfg analytics.DetectorConfig) WorkerOption {
	return func(w *Worker) {
		w.cfg = cfg
	}
}

// WithConsumerName overrides the consumer name within the group.
func WithConsumerName(name string) WorkerOption {
	return func(w *Worker) {
		if name != "" {
			w.consumer = name
		}
	}
}

// NewWorker constructs the worker.
func NewWorker(prev PrevStateStore, agg AggregateSink, sink AlertSink, logger *log.Logger, opts ...WorkerOption) (*Worker, error) {
	if prev == nil {
		return nil, errors.New("analytics worker: nil prev state store")
	}
	if agg == nil {
		return nil, errors.New("analytics worker: nil aggregate sink")
	}
	if sink == nil {
		return nil, errors.New("analytics worker: nil alert sink")
	}
	if logger == nil {
		logger = log.Default()
	}
	worker := &Worker{
		prev:     prev,
		agg:      agg,
		sink:     sink,
		cfg:      analytics.DefaultDetectorConfig(),
		consumer: "analytics-1",
		logger:   logger,
	}
	for _, opt := range opts {
		opt(worker)
	}
	return worker, nil
}

// Run blocks consuming the telemetry stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, bus stream.Bus) error {
	return bus.Subscribe(ctx, stream.TelemetryStream, stream.AnalyticsGroup, w.consumer, w.Handle)
}

// Handle processes one stream entry. Errors reading the previous state or
// writing the aggregate are returned so the entry stays pending for
// redelivery. Alert emission is best-effort (a redelivery would fire the
// detector twice), and so is the prev-state write, since by then the
// aggregate has been applied and a redelivery would double-count it.
func (w *Worker) Handle(ctx context.Context, entry stream.Entry) error {
	var event telemetry.Event
	if err := entry.DecodePayload(&event); err != nil {
		w.logger.Printf("analytics worker: entry %s undecodable: %v", entry.ID, err)
		metrics.IncConsumerProcessed(stream.AnalyticsGroup, false)
		return nil
	}
	if !entry.InsertedAt.IsZero() {
		metrics.ObserveConsumerLag(stream.AnalyticsGroup, time.Since(entry.InsertedAt))
	}

	prev, err := w.prev.Get(ctx, event.DeviceID)
	if err != nil {
		metrics.IncConsumerProcessed(stream.AnalyticsGroup, false)
		return err
	}

	w.emit(ctx, event, analytics.DetectOverspeed(event, w.cfg))
	w.emit(ctx, event, analytics.DetectFuelTheft(prev, event, w.cfg))

	tick := analytics.ComputeTick(prev, event)
	if err := w.agg.Apply(ctx, event.TenantID, event.DeviceID, tick); err != nil {
		metrics.IncConsumerProcessed(stream.AnalyticsGroup, false)
		return err
	}

	next := telemetry.PreviousState{
		FuelLevel: event.Metrics.FuelLevel,
		Timestamp: event.Timestamp,
		Lat:       event.Location.Lat,
		Lng:       event.Location.Lng,
		Odometer:  event.Metrics.Odometer,
	}
	if err := w.prev.Put(ctx, event.DeviceID, next); err != nil {
		w.logger.Printf("analytics worker: prev state for %s not stored: %v", event.DeviceID, err)
	}

	metrics.IncConsumerProcessed(stream.AnalyticsGroup, true)
	return nil
}

func (w *Worker) emit(ctx context.Context, event telemetry.Event, detection *analytics.Detection) {
	if detection == nil {
		return
	}
	if err := w.sink.CreateAlert(ctx, event.TenantID, event.DeviceID, detection.Type, detection.Severity, detection.Message); err != nil {
		w.logger.Printf("analytics worker: %s alert for %s not created: %v", detection.Type, event.DeviceID, err)
	}
}
