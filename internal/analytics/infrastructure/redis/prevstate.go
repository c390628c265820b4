package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

const defaultPrevStateTTL = 24 * time.Hour

// PrevStateStore keeps the last analyzed reading per device, so delta
// detectors have a baseline. Entries expire when a device goes silent.
type PrevStateStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// PrevStateOption configures the store.
type PrevStateOption func(*PrevStateStore)

// WithPrevStateTTL overrides the expiry window.
func WithPrevStateTTL(ttl time.Duration) PrevStateOption {
	return func(s *PrevStateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewPrevStateStore constructs a store.
func NewPrevStateStore(client *goredis.Client, opts ...PrevStateOption) (*PrevStateStore, error) {
	if client == nil {
		return nil, errors.New("prev state: nil redis client")
	}
	store := &PrevStateStore{client: client, ttl: defaultPrevStateTTL}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Get returns the previous reading, or nil when none is known.
func (s *PrevStateStore) Get(ctx context.Context, deviceID string) (*telemetry.PreviousState, error) {
	raw, err := s.client.Get(ctx, prevStateKey(deviceID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var prev telemetry.PreviousState
	if err := json.Unmarshal(raw, &prev); err != nil {
		return nil, err
	}
	return &prev, nil
}

// Put overwrites the previous reading and refreshes its expiry.
func (s *PrevStateStore) Put(ctx context.Context, deviceID string, prev telemetry.PreviousState) error {
	raw, err := json.Marshal(prev)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, prevStateKey(deviceID), raw, s.ttl).Err()
}

func prevStateKey(deviceID string) string {
	return "analytics:prev:" + deviceID
}
