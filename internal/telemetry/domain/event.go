package telemetry

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is the canonical telemetry shape every wire format is normalized
// into before it enters the pipeline. Fields are validated at the boundary;
// anything past the validator satisfies the ranges documented on Validate.
type Event struct {
	TenantID  string    `json:"tenantId"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Location  Location  `json:"location"`
	Metrics   Metrics   `json:"metrics"`
	Events    []string  `json:"events,omitempty"`
}

// Location is the positional part of an event.
type Location struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Speed    float64  `json:"speed"`
	Heading  *float64 `json:"heading,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
}

// Metrics carries the optional engine/fuel readings of an event.
type Metrics struct {
	FuelLevel   *float64 `json:"fuelLevel,omitempty"`
	EngineTemp  *float64 `json:"engineTemp,omitempty"`
	RPM         *float64 `json:"rpm,omitempty"`
	EngineHours *float64 `json:"engineHours,omitempty"`
	Odometer    *float64 `json:"odometer,omitempty"`
	Ignition    *bool    `json:"ignition,omitempty"`
}

// Fingerprint derives the dedup key for an event. Two events carrying the
// same device, capture time and coordinates are treated as the same packet
// within the dedup window; content plus time is the distinguishing
// property, not a sequence number.
func (e Event) Fingerprint() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%.6f|%.6f",
		e.DeviceID, e.Timestamp.UnixMilli(), e.Location.Lat, e.Location.Lng)))
	return hex.EncodeToString(sum[:])
}

// DeviceState is the latest-known hot snapshot per device. It is owned by
// the hot-state cache and continuously overwritten by live events.
type DeviceState struct {
	DeviceID string    `json:"deviceId"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Speed    float64   `json:"speed"`
	Fuel     float64   `json:"fuel"`
	LastSeen time.Time `json:"lastSeen"`
}

// PreviousState is the analytics-internal previous reading per device,
// feeding the delta-based detectors. It expires if a device goes silent.
type PreviousState struct {
	FuelLevel *float64  `json:"fuelLevel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Odometer  *float64  `json:"odometer,omitempty"`
}

// EventRepository persists accepted events to the durable store.
type EventRepository interface {
	Insert(ctx context.Context, event Event) error
}
