package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

const defaultLiveWindow = 10 * time.Minute

// HotState maintains the latest-known snapshot per device for low-latency
// fleet reads. Offline-batch catch-up packets older than the live window
// never overwrite it; they still reach the stream and the durable store.
type HotState struct {
	client     *goredis.Client
	liveWindow time.Duration
	now        func() time.Time
}

// HotStateOption configures the cache.
type HotStateOption func(*HotState)

// WithLiveWindow overrides the staleness cutoff.
func WithLiveWindow(window time.Duration) HotStateOption {
	return func(h *HotState) {
		if window > 0 {
			h.liveWindow = window
		}
	}
}

// WithHotStateClock overrides the clock, for tests.
func WithHotStateClock(now func() time.Time) HotStateOption {
	return func(h *HotState) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHotState constructs a cache.
func NewHotState(client *goredis.Client, opts ...HotStateOption) (*HotState, error) {
	if client == nil {
		return nil, errors.New("hot state: nil redis client")
	}
	state := &HotState{client: client, liveWindow: defaultLiveWindow, now: time.Now}
	for _, opt := range opts {
		opt(state)
	}
	return state, nil
}

// UpdateIfLive overwrites the device snapshot unless the event is older
// than the live window. Returns true when the snapshot was written.
func (h *HotState) UpdateIfLive(ctx context.Context, event telemetry.Event) (bool, error) {
	if h.now().Sub(event.Timestamp) > h.liveWindow {
		return false, nil
	}

	fields := map[string]any{
		"lat":      strconv.FormatFloat(event.Location.Lat, 'f', -1, 64),
		"lng":      strconv.FormatFloat(event.Location.Lng, 'f', -1, 64),
		"speed":    strconv.FormatFloat(event.Location.Speed, 'f', -1, 64),
		"lastSeen": event.Timestamp.UTC().Format(time.RFC3339),
	}
	if event.Metrics.FuelLevel != nil {
		fields["fuel"] = strconv.FormatFloat(*event.Metrics.FuelLevel, 'f', -1, 64)
	}

	if err := h.client.HSet(ctx, hotStateKey(event.DeviceID), fields).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Latest returns the device snapshot, or nil when none is known.
func (h *HotState) Latest(ctx context.Context, deviceID string) (*telemetry.DeviceState, error) {
	fields, err := h.client.HGetAll(ctx, hotStateKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &telemetry.DeviceState{DeviceID: deviceID}
	state.Lat, _ = strconv.ParseFloat(fields["lat"], 64)
	state.Lng, _ = strconv.ParseFloat(fields["lng"], 64)
	state.Speed, _ = strconv.ParseFloat(fields["speed"], 64)
	state.Fuel, _ = strconv.ParseFloat(fields["fuel"], 64)
	if lastSeen, err := time.Parse(time.RFC3339, fields["lastSeen"]); err == nil {
		state.LastSeen = lastSeen
	}
	return state, nil
}

func hotStateKey(deviceID string) string {
	return "device:" + deviceID + ":state"
}
