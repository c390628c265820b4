package telemetry

import (
	"testing"
	"time"
)

func validPayload() map[string]any {
	return map[string]any{
		"deviceId":  "veh-001",
		"timestamp": "2026-03-01T10:00:00Z",
		"location": map[string]any{
			"lat":   52.52,
			"lng":   13.405,
			"speed": 42.5,
		},
		"metrics": map[string]any{
			"fuelLevel": 71.0,
			"ignition":  true,
			"odometer":  120400.0,
		},
	}
}

func TestValidateAcceptsCanonicalPayload(t *testing.T) {
	event, violations := Validate(validPayload())
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if event.DeviceID != "veh-001" {
		t.Fatalf("device id = %q", event.DeviceID)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s, want %s", event.Timestamp, want)
	}
	if event.Location.Speed != 42.5 {
		t.Fatalf("speed = %v", event.Location.Speed)
	}
	if event.Metrics.FuelLevel == nil || *event.Metrics.FuelLevel != 71 {
		t.Fatalf("fuel level = %v", event.Metrics.FuelLevel)
	}
	if event.Metrics.Ignition == nil || !*event.Metrics.Ignition {
		t.Fatalf("ignition = %v", event.Metrics.Ignition)
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	payload := map[string]any{
		"timestamp": "not-a-time",
		"location": map[string]any{
			"lat":   91.0,
			"lng":   13.405,
			"speed": 301.0,
		},
	}
	_, violations := Validate(payload)
	wantFields := map[string]bool{
		"deviceId":       false,
		"timestamp":      false,
		"location.lat":   false,
		"location.speed": false,
	}
	for _, v := range violations {
		if _, ok := wantFields[v.Field]; ok {
			wantFields[v.Field] = true
		}
	}
	for field, seen := range wantFields {
		if !seen {
			t.Errorf("missing violation for %s (got %v)", field, violations)
		}
	}
	if len(violations) != len(wantFields) {
		t.Fatalf("violations = %d, want %d: %v", len(violations), len(wantFields), violations)
	}
}

func TestValidateRejectsBoundaryExcess(t *testing.T) {
	cases := []struct {
		name  string
		patch func(map[string]any)
		field string
	}{
		{"lat above range", func(p map[string]any) { p["location"].(map[string]any)["lat"] = 90.001 }, "location.lat"},
		{"lng below range", func(p map[string]any) { p["location"].(map[string]any)["lng"] = -180.5 }, "location.lng"},
		{"speed above range", func(p map[string]any) { p["location"].(map[string]any)["speed"] = 300.1 }, "location.speed"},
		{"heading above range", func(p map[string]any) { p["location"].(map[string]any)["heading"] = 361.0 }, "location.heading"},
		{"fuel above range", func(p map[string]any) { p["metrics"].(map[string]any)["fuelLevel"] = 100.5 }, "metrics.fuelLevel"},
		{"rpm above range", func(p map[string]any) { p["metrics"].(map[string]any)["rpm"] = 10001.0 }, "metrics.rpm"},
		{"negative odometer", func(p map[string]any) { p["metrics"].(map[string]any)["odometer"] = -1.0 }, "metrics.odometer"},
		{"ignition not bool", func(p map[string]any) { p["metrics"].(map[string]any)["ignition"] = "on" }, "metrics.ignition"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.patch(payload)
			_, violations := Validate(payload)
			if len(violations) != 1 {
				t.Fatalf("violations = %v, want exactly one", violations)
			}
			if violations[0].Field != tc.field {
				t.Fatalf("field = %q, want %q", violations[0].Field, tc.field)
			}
		})
	}
}

func TestValidateAcceptsBoundaryValues(t *testing.T) {
	payload := validPayload()
	payload["location"].(map[string]any)["lat"] = 90.0
	payload["location"].(map[string]any)["lng"] = -180.0
	payload["location"].(map[string]any)["speed"] = 300.0
	payload["metrics"].(map[string]any)["fuelLevel"] = 0.0
	_, violations := Validate(payload)
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}

func TestValidateNumericTimestampRejected(t *testing.T) {
	payload := validPayload()
	payload["timestamp"] = 1700000000000.0
	_, violations := Validate(payload)
	if len(violations) != 1 || violations[0].Field != "timestamp" {
		t.Fatalf("violations = %v", violations)
	}
}

func TestFingerprintStableAcrossMetricChanges(t *testing.T) {
	event, violations := Validate(validPayload())
	if violations != nil {
		t.Fatalf("unexpected violations: %v", violations)
	}
	other := event
	fuel := 12.0
	other.Metrics.FuelLevel = &fuel

	if event.Fingerprint() != other.Fingerprint() {
		t.Fatal("fingerprint must ignore metrics")
	}

	moved := event
	moved.Location.Lat += 0.5
	if event.Fingerprint() == moved.Fingerprint() {
		t.Fatal("fingerprint must include location")
	}
}
