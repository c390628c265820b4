package application

import (
	"context"
	"errors"
	"log"

	"fleet-cloud/internal/observability/metrics"
	"fleet-cloud/internal/stream"
	telemetry "fleet-cloud/internal/telemetry/domain"
	"fleet-cloud/internal/telemetry/wire"
)

// DedupGate suppresses duplicate packets.
type DedupGate interface {
	IsDuplicate(ctx context.Context, event telemetry.Event) (bool, error)
}

// HotStateWriter maintains the per-device latest snapshot.
type HotStateWriter interface {
	UpdateIfLive(ctx context.Context, event telemetry.Event) (bool, error)
}

// Outcome classifies one ingest attempt.
type Outcome int

const (
	// OutcomeAccepted means the event entered the stream and storage path.
	OutcomeAccepted Outcome = iota
	// OutcomeDuplicate means the packet was suppressed by the dedup gate.
	// A duplicate is a normal, expected result, not a failure.
	OutcomeDuplicate
	// OutcomeInvalid means the payload failed validation at the boundary.
	OutcomeInvalid
)

// IngestService runs the synchronous ingestion path: adapt, validate,
// deduplicate, update hot state, append to the stream. The durable store
// write happens off the request path through the store writer.
type IngestService struct {
	dedup    DedupGate
	hotState HotStateWriter
	bus      stream.Bus
	writer   *StoreWriter
	logger   *log.Logger
}

// NewIngestService constructs the service.
func NewIngestService(dedup DedupGate, hotState HotStateWriter, bus stream.Bus, writer *StoreWriter, logger *log.Logger) (*IngestService, error) {
	if dedup == nil {
		return nil, errors.New("ingest: nil dedup gate")
	}
	if hotState == nil {
		return nil, errors.New("ingest: nil hot state")
	}
	if bus == nil {
		return nil, errors.New("ingest: nil bus")
	}
	if writer == nil {
		return nil, errors.New("ingest: nil store writer")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestService{dedup: dedup, hotState: hotState, bus: bus, writer: writer, logger: logger}, nil
}

// Ingest processes one raw payload. tenantID comes from the authenticated
// device identity, never from the payload itself unless already assigned
// upstream. A non-nil error means transient infrastructure failure on a
// critical path; the caller must fail the request.
func (s *IngestService) Ingest(ctx context.Context, raw map[string]any, tenantID string) (Outcome, []telemetry.FieldViolation, error) {
	normalized := wire.Normalize(raw)

	event, violations := telemetry.Validate(normalized)
	if len(violations) > 0 {
		return OutcomeInvalid, violations, nil
	}
	if event.TenantID == "" {
		event.TenantID = tenantID
	}

	duplicate, err := s.dedup.IsDuplicate(ctx, event)
	if err != nil {
		// A dedup failure must fail the request rather than silently
		// accept a possible duplicate.
		return OutcomeAccepted, nil, err
	}
	if duplicate {
		return OutcomeDuplicate, nil, nil
	}

	if _, err := s.hotState.UpdateIfLive(ctx, event); err != nil {
		s.logger.Printf("ingest: hot state update for %s failed: %v", event.DeviceID, err)
	}

	if _, err := s.bus.Publish(ctx, stream.TelemetryStream, stream.EventTypeTelemetry, event); err != nil {
		return OutcomeAccepted, nil, err
	}
	metrics.IncStreamPublished(stream.TelemetryStream)

	s.writer.Enqueue(event)

	return OutcomeAccepted, nil, nil
}

// BatchItemFailure reports one rejected item of a batch.
type BatchItemFailure struct {
	Index      int                        `json:"index"`
	Violations []telemetry.FieldViolation `json:"errors,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// BatchResult tallies a batch ingest. A single invalid item never
// invalidates the batch.
type BatchResult struct {
	Received   int                `json:"received"`
	Processed  int                `json:"processed"`
	Duplicates int                `json:"duplicates"`
	Failures   []BatchItemFailure `json:"failures"`
}

// IngestBatch processes each item independently.
func (s *IngestService) IngestBatch(ctx context.Context, items []any, tenantID string) BatchResult {
	result := BatchResult{Received: len(items), Failures: []BatchItemFailure{}}
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			result.Failures = append(result.Failures, BatchItemFailure{Index: i, Error: "item is not an object"})
			continue
		}
		outcome, violations, err := s.Ingest(ctx, raw, tenantID)
		switch {
		case err != nil:
			result.Failures = append(result.Failures, BatchItemFailure{Index: i, Error: err.Error()})
		case outcome == OutcomeInvalid:
			result.Failures = append(result.Failures, BatchItemFailure{Index: i, Violations: violations})
		case outcome == OutcomeDuplicate:
			result.Duplicates++
		default:
			result.Processed++
		}
	}
	return result
}
