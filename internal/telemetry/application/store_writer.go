package application

import (
	"context"
	"errors"
	"log"
	"time"

	"fleet-cloud/internal/observability/metrics"
	telemetry "fleet-cloud/internal/telemetry/domain"
)

const (
	defaultWriterQueueSize   = 1024
	defaultWriterWriteBudget = 5 * time.Second
)

// StoreWriter persists accepted events to the durable store as a
// best-effort background task. Write failures surface through logs and
// metrics instead of blocking the ingest response; durable storage serves
// historical query and may lag or retry independently.
type StoreWriter struct {
	repo   telemetry.EventRepository
	logger *log.Logger
	queue  chan telemetry.Event
	budget time.Duration
}

// StoreWriterOption configures the writer.
type StoreWriterOption func(*StoreWriter)

// WithQueueSize overrides the buffered queue capacity.
func WithQueueSize(size int) StoreWriterOption {
	return func(w *StoreWriter) {
		if size > 0 {
			w.queue = make(chan telemetry.Event, size)
		}
	}
}

// NewStoreWriter constructs a writer.
func NewStoreWriter(repo telemetry.EventRepository, logger *log.Logger, opts ...StoreWriterOption) (*StoreWriter, error) {
	if repo == nil {
		return nil, errors.New("store writer: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	writer := &StoreWriter{
		repo:   repo,
		logger: logger,
		queue:  make(chan telemetry.Event, defaultWriterQueueSize),
		budget: defaultWriterWriteBudget,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return writer, nil
}

// Enqueue hands one event to the background task without blocking the
// caller. A full queue drops the write and counts it; the stream entry
// remains the downstream correctness guarantee.
func (w *StoreWriter) Enqueue(event telemetry.Event) {
	select {
	case w.queue <- event:
	default:
		metrics.IncStoreDropped()
		w.logger.Printf("store writer: queue full, dropping event for %s", event.DeviceID)
	}
}

// Run consumes the queue until ctx is cancelled, then drains what is
// already buffered before returning.
func (w *StoreWriter) Run(ctx context.Context) {
	for {
		select {
		case event := <-w.queue:
			w.persist(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-w.queue:
					w.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (w *StoreWriter) persist(event telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), w.budget)
	defer cancel()

	if err := w.repo.Insert(ctx, event); err != nil {
		metrics.IncStoreWrite(false)
		w.logger.Printf("store writer: insert for %s at %s failed: %v",
			event.DeviceID, event.Timestamp.Format(time.RFC3339), err)
		return
	}
	metrics.IncStoreWrite(true)
}
