package analytics

import (
	"fmt"
	"time"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

// DetectorConfig holds the anomaly thresholds.
type DetectorConfig struct {
	// SpeedLimitKmh is the overspeed threshold; every qualifying event
	// fires, with no hysteresis.
	SpeedLimitKmh float64
	// FuelDropPct and FuelDropMaxGap bound the fuel-theft rule: a drop
	// larger than the percentage within the gap, while stationary, is
	// inconsistent with normal consumption and indicative of siphoning.
	FuelDropPct     float64
	FuelDropMaxGap  time.Duration
	StationaryBelow float64
}

// DefaultDetectorConfig returns production thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SpeedLimitKmh:   110,
		FuelDropPct:     5,
		FuelDropMaxGap:  120 * time.Second,
		StationaryBelow: 1,
	}
}

// Detection is one anomaly found in an event.
type Detection struct {
	Type     string
	Severity string
	Message  string
}

// DetectOverspeed fires on every event above the speed limit.
func DetectOverspeed(event telemetry.Event, cfg DetectorConfig) *Detection {
	if event.Location.Speed <= cfg.SpeedLimitKmh {
		return nil
	}
	return &Detection{
		Type:     "overspeed",
		Severity: "high",
		Message:  fmt.Sprintf("speed %.1f km/h exceeds limit %.0f", event.Location.Speed, cfg.SpeedLimitKmh),
	}
}

// DetectFuelTheft fires when fuel drops sharply within a short gap while
// the vehicle is stationary. Requires a previous reading.
func DetectFuelTheft(prev *telemetry.PreviousState, event telemetry.Event, cfg DetectorConfig) *Detection {
	if prev == nil || prev.FuelLevel == nil || event.Metrics.FuelLevel == nil {
		return nil
	}
	fuelDrop := *prev.FuelLevel - *event.Metrics.FuelLevel
	timeGap := event.Timestamp.Sub(prev.Timestamp)
	if fuelDrop <= cfg.FuelDropPct || timeGap >= cfg.FuelDropMaxGap || event.Location.Speed >= cfg.StationaryBelow {
		return nil
	}
	return &Detection{
		Type:     "fuel_drop",
		Severity: "critical",
		Message:  fmt.Sprintf("fuel dropped %.1f%% in %.0fs while stationary", fuelDrop, timeGap.Seconds()),
	}
}
