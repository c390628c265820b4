package analytics

import (
	"testing"
	"time"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

func boolPtr(v bool) *bool { return &v }

func TestComputeTickDefaultsWithoutPrevious(t *testing.T) {
	event := telemetry.Event{
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Location:  telemetry.Location{Speed: 30},
		Metrics:   telemetry.Metrics{Ignition: boolPtr(true), Odometer: floatPtr(1000)},
	}
	tick := ComputeTick(nil, event)

	if tick.Day != time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("day = %s", tick.Day)
	}
	if tick.EngineOnSecs != DefaultTickSeconds {
		t.Fatalf("engine on = %v, want default tick", tick.EngineOnSecs)
	}
	if tick.IdleSecs != 0 {
		t.Fatalf("idle = %v", tick.IdleSecs)
	}
	if tick.DistanceDelta != 0 {
		t.Fatalf("distance = %v, want 0 without previous odometer", tick.DistanceDelta)
	}
}

func TestComputeTickCapsLongGap(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := &telemetry.PreviousState{Timestamp: now.Add(-2 * time.Hour), Odometer: floatPtr(1000)}
	event := telemetry.Event{
		Timestamp: now,
		Location:  telemetry.Location{Speed: 50},
		Metrics:   telemetry.Metrics{Ignition: boolPtr(true), Odometer: floatPtr(1012)},
	}
	tick := ComputeTick(prev, event)

	if tick.EngineOnSecs != MaxTickSeconds {
		t.Fatalf("engine on = %v, want capped at %d", tick.EngineOnSecs, MaxTickSeconds)
	}
	if tick.DistanceDelta != 12 {
		t.Fatalf("distance = %v", tick.DistanceDelta)
	}
}

func TestComputeTickClampsOdometerReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := &telemetry.PreviousState{Timestamp: now.Add(-30 * time.Second), Odometer: floatPtr(99999)}
	event := telemetry.Event{
		Timestamp: now,
		Location:  telemetry.Location{Speed: 20},
		Metrics:   telemetry.Metrics{Ignition: boolPtr(true), Odometer: floatPtr(3)},
	}
	tick := ComputeTick(prev, event)
	if tick.DistanceDelta != 0 {
		t.Fatalf("distance = %v, reset must clamp to 0", tick.DistanceDelta)
	}
}

func TestComputeTickClassifiesIdle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := &telemetry.PreviousState{Timestamp: now.Add(-30 * time.Second)}

	idle := ComputeTick(prev, telemetry.Event{
		Timestamp: now,
		Location:  telemetry.Location{Speed: 0.4},
		Metrics:   telemetry.Metrics{Ignition: boolPtr(true)},
	})
	if idle.EngineOnSecs != 30 || idle.IdleSecs != 30 {
		t.Fatalf("idle tick = %+v", idle)
	}

	active := ComputeTick(prev, telemetry.Event{
		Timestamp: now,
		Location:  telemetry.Location{Speed: 25},
		Metrics:   telemetry.Metrics{Ignition: boolPtr(true)},
	})
	if active.EngineOnSecs != 30 || active.IdleSecs != 0 {
		t.Fatalf("active tick = %+v", active)
	}

	off := ComputeTick(prev, telemetry.Event{
		Timestamp: now,
		Location:  telemetry.Location{Speed: 0},
	})
	if off.EngineOnSecs != 0 || off.IdleSecs != 0 {
		t.Fatalf("ignition-off tick = %+v", off)
	}
}

func TestComputeTickNegativeGapClampsToZero(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := &telemetry.PreviousState{Timestamp: now.Add(10 * time.Second)}
	tick := ComputeTick(prev, telemetry.Event{
		Timestamp: now,
		Location:  telemetry.Location{Speed: 10},
		Metrics:   telemetry.Metrics{Ignition: boolPtr(true)},
	})
	if tick.EngineOnSecs != 0 {
		t.Fatalf("engine on = %v, out-of-order event must not book time", tick.EngineOnSecs)
	}
}
