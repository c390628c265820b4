package stream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fleet-cloud/internal/observability/metrics"
)

// MemoryBus is an in-process Bus with the same consumer-group semantics as
// the Redis implementation: per-group cursors, acknowledgement, redelivery
// of unacknowledged entries and a bounded delivery budget. It backs tests
// and single-process deployments.
type MemoryBus struct {
	mu            sync.Mutex
	streams       map[string]*memoryStream
	logger        *log.Logger
	deadLetters   DeadLetterStore
	blockInterval time.Duration
	maxDeliveries int64
	seq           int64
}

type memoryStream struct {
	entries []Entry
	groups  map[string]*memoryGroup
	notify  chan struct{}
}

type memoryGroup struct {
	cursor  int
	pending []*pendingEntry
}

type pendingEntry struct {
	entry      Entry
	deliveries int64
	inFlight   bool
}

// MemoryBusOption customizes the bus.
type MemoryBusOption func(*MemoryBus)

// WithMemoryDeadLetterStore routes exhausted entries to the store.
func WithMemoryDeadLetterStore(store DeadLetterStore) MemoryBusOption {
	return func(b *MemoryBus) { b.deadLetters = store }
}

// WithMemoryMaxDeliveries overrides the per-entry delivery budget.
func WithMemoryMaxDeliveries(n int64) MemoryBusOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.maxDeliveries = n
		}
	}
}

// WithMemoryBlockInterval bounds the idle poll wait.
func WithMemoryBlockInterval(d time.Duration) MemoryBusOption {
	return func(b *MemoryBus) {
		if d > 0 {
			b.blockInterval = d
		}
	}
}

// NewMemoryBus constructs an empty bus.
func NewMemoryBus(logger *log.Logger, opts ...MemoryBusOption) *MemoryBus {
	if logger == nil {
		logger = log.Default()
	}
	bus := &MemoryBus{
		streams:       make(map[string]*memoryStream),
		logger:        logger,
		blockInterval: 50 * time.Millisecond,
		maxDeliveries: defaultMaxDeliveries,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Publish appends one entry and wakes blocked consumers.
func (b *MemoryBus) Publish(_ context.Context, stream, eventType string, payload any) (string, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	b.seq++
	entry := Entry{
		ID:         fmt.Sprintf("%d-%d", time.Now().UnixMilli(), b.seq),
		Type:       eventType,
		Payload:    raw,
		InsertedAt: time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	close(s.notify)
	s.notify = make(chan struct{})
	return entry.ID, nil
}

// Len reports the number of entries appended to a stream.
func (b *MemoryBus) Len(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.streams[stream]; ok {
		return len(s.entries)
	}
	return 0
}

// Subscribe runs the blocking consume loop for one consumer of a group.
func (b *MemoryBus) Subscribe(ctx context.Context, stream, group, _ string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, notify := b.nextBatch(ctx, stream, group)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-notify:
			case <-time.After(b.blockInterval):
			}
			continue
		}

		for _, p := range batch {
			err := handler(ctx, p.entry)
			b.settle(stream, group, p, err)
		}
	}
}

// nextBatch re-offers pending entries first, then claims new ones. Entries
// past the delivery budget are dropped from the group and dead-lettered
// after the lock is released, so a slow store never stalls the bus.
func (b *MemoryBus) nextBatch(ctx context.Context, stream, group string) ([]*pendingEntry, chan struct{}) {
	b.mu.Lock()

	s := b.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		g = &memoryGroup{}
		s.groups[group] = g
	}

	var batch []*pendingEntry
	var keep []*pendingEntry
	var dropped []Entry
	for _, p := range g.pending {
		if p.inFlight {
			keep = append(keep, p)
			continue
		}
		if p.deliveries >= b.maxDeliveries {
			dropped = append(dropped, p.entry)
			continue
		}
		if int64(len(batch)) < defaultBatchSize {
			p.inFlight = true
			p.deliveries++
			batch = append(batch, p)
		}
		keep = append(keep, p)
	}
	g.pending = keep

	for g.cursor < len(s.entries) && int64(len(batch)) < defaultBatchSize {
		p := &pendingEntry{entry: s.entries[g.cursor], deliveries: 1, inFlight: true}
		g.cursor++
		g.pending = append(g.pending, p)
		batch = append(batch, p)
	}

	notify := s.notify
	b.mu.Unlock()

	for _, entry := range dropped {
		b.recordDeadLetter(ctx, stream, group, entry)
	}
	return batch, notify
}

func (b *MemoryBus) settle(stream, group string, p *pendingEntry, handlerErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.stream(stream).groups[group]
	if handlerErr != nil {
		b.logger.Printf("stream %s group %s: entry %s not acked: %v", stream, group, p.entry.ID, handlerErr)
		p.inFlight = false
		return
	}
	for i, candidate := range g.pending {
		if candidate == p {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			return
		}
	}
}

func (b *MemoryBus) recordDeadLetter(ctx context.Context, stream, group string, entry Entry) {
	letter := DeadLetter{
		Stream:    stream,
		Group:     group,
		EntryID:   entry.ID,
		EventType: entry.Type,
		Payload:   entry.Payload,
		Reason:    "delivery budget exhausted",
	}
	if b.deadLetters != nil {
		if err := b.deadLetters.Record(ctx, letter); err != nil {
			b.logger.Printf("stream %s group %s: dead-letter %s record error: %v", stream, group, entry.ID, err)
		}
	}
	metrics.IncDeadLetter(group)
	b.logger.Printf("stream %s group %s: entry %s dead-lettered", stream, group, entry.ID)
}

func (b *MemoryBus) stream(name string) *memoryStream {
	s, ok := b.streams[name]
	if !ok {
		s = &memoryStream{
			groups: make(map[string]*memoryGroup),
			notify: make(chan struct{}),
		}
		b.streams[name] = s
	}
	return s
}
