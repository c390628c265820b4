package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

// The client below points at a closed port; the staleness check must
// short-circuit before any round-trip, so these tests need no server.
func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
}

func TestHotStateSkipsStalePacket(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	state, err := NewHotState(unreachableClient(), WithHotStateClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new hot state: %v", err)
	}

	event := telemetry.Event{
		DeviceID:  "veh-001",
		Timestamp: now.Add(-10*time.Minute - time.Second),
	}
	written, err := state.UpdateIfLive(context.Background(), event)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if written {
		t.Fatal("stale packet overwrote the snapshot")
	}
}

func TestHotStateLiveWindowBoundary(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	state, err := NewHotState(
		unreachableClient(),
		WithHotStateClock(func() time.Time { return now }),
		WithLiveWindow(5*time.Minute),
	)
	if err != nil {
		t.Fatalf("new hot state: %v", err)
	}

	written, err := state.UpdateIfLive(context.Background(), telemetry.Event{
		DeviceID:  "veh-001",
		Timestamp: now.Add(-5*time.Minute - time.Millisecond),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if written {
		t.Fatal("packet past the shortened window overwrote the snapshot")
	}
}
