// Package stream provides the append-only, ordered, multi-consumer event
// log decoupling ingestion from downstream processing. Each consumer group
// tracks its own cursor and acknowledgement state over the same underlying
// log; unacknowledged entries are redelivered to the group, so delivery is
// at-least-once and handlers must tolerate reprocessing.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Stream and group names used by the pipeline.
const (
	TelemetryStream = "telemetry:events"
	AlertsStream    = "events:alerts:generated"

	AnalyticsGroup = "analytics"
	AlertsGroup    = "alerts"
)

// EventTypeTelemetry tags raw telemetry entries on the telemetry stream.
const EventTypeTelemetry = "telemetry.received"

// Entry is one immutable record of the log.
type Entry struct {
	ID         string
	Type       string
	Payload    []byte
	InsertedAt time.Time
}

// DecodePayload unmarshals the entry payload into dst.
func (e Entry) DecodePayload(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// Handler processes one delivered entry. A nil return acknowledges the
// entry for the group; an error leaves it pending for redelivery.
type Handler func(ctx context.Context, entry Entry) error

// Bus is the publish/subscribe contract over the log. Implementations are
// constructed and injected explicitly; there is no process-wide instance.
type Bus interface {
	// Publish appends one entry and returns its assigned id. Entries are
	// never overwritten.
	Publish(ctx context.Context, stream, eventType string, payload any) (string, error)

	// Subscribe ensures the group exists, then blocks polling the stream
	// and invoking handler per entry until ctx is cancelled. Entries are
	// delivered to the group in publish order, at most one in-flight copy
	// per entry within the group.
	Subscribe(ctx context.Context, stream, group, consumer string, handler Handler) error
}

// DeadLetter records an entry dropped after exhausting its redeliveries.
type DeadLetter struct {
	Stream    string
	Group     string
	EntryID   string
	EventType string
	Payload   []byte
	Reason    string
}

// DeadLetterStore persists dead letters for operator inspection. A nil
// store means poisoned entries are acknowledged and only logged.
type DeadLetterStore interface {
	Record(ctx context.Context, letter DeadLetter) error
}

// ErrNilHandler is returned when Subscribe is called without a handler.
var ErrNilHandler = errors.New("stream: nil handler")

func marshalPayload(payload any) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
