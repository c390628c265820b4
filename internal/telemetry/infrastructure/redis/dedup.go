package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

const defaultDedupWindow = 600 * time.Second

// DedupGate suppresses duplicate packets by registering content-derived
// fingerprints with a bounded time window.
type DedupGate struct {
	client *goredis.Client
	window time.Duration
}

// DedupOption configures the gate.
type DedupOption func(*DedupGate)

// WithDedupWindow overrides the fingerprint expiry.
func WithDedupWindow(window time.Duration) DedupOption {
	return func(g *DedupGate) {
		if window > 0 {
			g.window = window
		}
	}
}

// NewDedupGate constructs a gate.
func NewDedupGate(client *goredis.Client, opts ...DedupOption) (*DedupGate, error) {
	if client == nil {
		return nil, errors.New("dedup gate: nil redis client")
	}
	gate := &DedupGate{client: client, window: defaultDedupWindow}
	for _, opt := range opts {
		opt(gate)
	}
	return gate, nil
}

// IsDuplicate registers the event fingerprint and reports whether it was
// already present. The set-if-absent with expiry is a single atomic
// round-trip; two identical packets racing cannot both pass. An infra error
// must fail the request rather than silently accept a possible duplicate.
func (g *DedupGate) IsDuplicate(ctx context.Context, event telemetry.Event) (bool, error) {
	inserted, err := g.client.SetNX(ctx, "dedup:"+event.Fingerprint(), 1, g.window).Result()
	if err != nil {
		return false, err
	}
	return !inserted, nil
}
