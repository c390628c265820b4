package stream

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-cloud/internal/observability/metrics"
)

const (
	defaultBatchSize     = 10
	defaultBlockInterval = 5 * time.Second
	defaultRetryDelay    = time.Second
	defaultClaimMinIdle  = 30 * time.Second
	defaultMaxDeliveries = 5
)

// RedisBus implements Bus on Redis Streams with consumer groups.
type RedisBus struct {
	client        *redis.Client
	logger        *log.Logger
	deadLetters   DeadLetterStore
	batchSize     int64
	blockInterval time.Duration
	retryDelay    time.Duration
	claimMinIdle  time.Duration
	maxDeliveries int64
}

// RedisBusOption customizes the bus.
type RedisBusOption func(*RedisBus)

// WithDeadLetterStore routes poisoned entries to the store once their
// delivery count exceeds the bounded retry budget.
func WithDeadLetterStore(store DeadLetterStore) RedisBusOption {
	return func(b *RedisBus) { b.deadLetters = store }
}

// WithMaxDeliveries overrides the redelivery budget per entry per group.
func WithMaxDeliveries(n int64) RedisBusOption {
	return func(b *RedisBus) {
		if n > 0 {
			b.maxDeliveries = n
		}
	}
}

// WithBlockInterval bounds the poll wait; a short bound keeps consumers
// responsive to shutdown, not just throughput.
func WithBlockInterval(d time.Duration) RedisBusOption {
	return func(b *RedisBus) {
		if d > 0 {
			b.blockInterval = d
		}
	}
}

// NewRedisBus constructs a bus over an existing client.
func NewRedisBus(client *redis.Client, logger *log.Logger, opts ...RedisBusOption) (*RedisBus, error) {
	if client == nil {
		return nil, errors.New("stream: nil redis client")
	}
	if logger == nil {
		logger = log.Default()
	}
	bus := &RedisBus{
		client:        client,
		logger:        logger,
		batchSize:     defaultBatchSize,
		blockInterval: defaultBlockInterval,
		retryDelay:    defaultRetryDelay,
		claimMinIdle:  defaultClaimMinIdle,
		maxDeliveries: defaultMaxDeliveries,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus, nil
}

// Publish appends one entry via XADD.
func (b *RedisBus) Publish(ctx context.Context, stream, eventType string, payload any) (string, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"type":       eventType,
			"payload":    string(raw),
			"insertedAt": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
}

// Subscribe runs the blocking consume loop for one consumer of a group.
func (b *RedisBus) Subscribe(ctx context.Context, stream, group, consumer string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.claimPending(ctx, stream, group, consumer, handler)

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    b.batchSize,
			Block:    b.blockInterval,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Printf("stream %s group %s: read error: %v", stream, group, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.deliver(ctx, stream, group, decodeMessage(msg), handler)
			}
		}
	}
}

func (b *RedisBus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *RedisBus) deliver(ctx context.Context, stream, group string, entry Entry, handler Handler) {
	if err := handler(ctx, entry); err != nil {
		// Not acknowledged: the entry stays pending and is re-offered on a
		// later claim pass.
		b.logger.Printf("stream %s group %s: entry %s not acked: %v", stream, group, entry.ID, err)
		return
	}
	if err := b.client.XAck(ctx, stream, group, entry.ID).Err(); err != nil {
		b.logger.Printf("stream %s group %s: ack %s error: %v", stream, group, entry.ID, err)
	}
}

// claimPending re-offers entries delivered to the group but never
// acknowledged. Entries past the delivery budget are dead-lettered and
// acknowledged so a deterministic handler bug cannot loop forever.
func (b *RedisBus) claimPending(ctx context.Context, stream, group, consumer string, handler Handler) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   b.claimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  b.batchSize,
	}).Result()
	if err != nil || len(pending) == 0 {
		return
	}

	for _, p := range pending {
		if p.RetryCount >= b.maxDeliveries {
			b.deadLetter(ctx, stream, group, p.ID)
			continue
		}
		claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  b.claimMinIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			b.logger.Printf("stream %s group %s: claim %s error: %v", stream, group, p.ID, err)
			continue
		}
		for _, msg := range claimed {
			b.deliver(ctx, stream, group, decodeMessage(msg), handler)
		}
	}
}

func (b *RedisBus) deadLetter(ctx context.Context, stream, group, id string) {
	var letter DeadLetter
	letter.Stream = stream
	letter.Group = group
	letter.EntryID = id
	letter.Reason = "delivery budget exhausted"

	msgs, err := b.client.XRange(ctx, stream, id, id).Result()
	if err == nil && len(msgs) == 1 {
		entry := decodeMessage(msgs[0])
		letter.EventType = entry.Type
		letter.Payload = entry.Payload
	}

	if b.deadLetters != nil {
		if err := b.deadLetters.Record(ctx, letter); err != nil {
			b.logger.Printf("stream %s group %s: dead-letter %s record error: %v", stream, group, id, err)
			return
		}
	}
	metrics.IncDeadLetter(group)
	b.logger.Printf("stream %s group %s: entry %s dead-lettered", stream, group, id)
	_ = b.client.XAck(ctx, stream, group, id).Err()
}

func decodeMessage(msg redis.XMessage) Entry {
	entry := Entry{ID: msg.ID}
	if t, ok := msg.Values["type"].(string); ok {
		entry.Type = t
	}
	if p, ok := msg.Values["payload"].(string); ok {
		entry.Payload = []byte(p)
	}
	if at, ok := msg.Values["insertedAt"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			entry.InsertedAt = parsed
		}
	}
	return entry
}
