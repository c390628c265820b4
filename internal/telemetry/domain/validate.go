package telemetry

import (
	"fmt"
	"time"
)

// FieldViolation describes one failed field-level constraint. Callers
// report every violation of a payload, not just the first.
type FieldViolation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Value      any    `json:"value,omitempty"`
}

func (v FieldViolation) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", v.Field, v.Constraint, v.Value)
}

// Validate enforces the canonical event contract on a normalized payload.
// It returns the typed event and a nil slice when the payload is valid, or
// the full list of violations otherwise. An event failing validation never
// reaches deduplication or storage.
func Validate(raw map[string]any) (Event, []FieldViolation) {
	var event Event
	var violations []FieldViolation

	deviceID, ok := stringField(raw, "deviceId")
	if !ok || deviceID == "" {
		violations = append(violations, FieldViolation{Field: "deviceId", Constraint: "required non-empty string", Value: raw["deviceId"]})
	}
	event.DeviceID = deviceID

	if tenantID, ok := stringField(raw, "tenantId"); ok {
		event.TenantID = tenantID
	}

	switch ts := raw["timestamp"].(type) {
	case nil:
		violations = append(violations, FieldViolation{Field: "timestamp", Constraint: "required ISO-8601 instant"})
	case string:
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			violations = append(violations, FieldViolation{Field: "timestamp", Constraint: "must be an ISO-8601 instant", Value: ts})
		} else {
			event.Timestamp = parsed.UTC()
		}
	default:
		violations = append(violations, FieldViolation{Field: "timestamp", Constraint: "must be an ISO-8601 string", Value: ts})
	}

	location, ok := mapField(raw, "location")
	if !ok {
		violations = append(violations, FieldViolation{Field: "location", Constraint: "required object", Value: raw["location"]})
	} else {
		violations = append(violations, validateLocation(location, &event.Location)...)
	}

	if metrics, ok := mapField(raw, "metrics"); ok {
		violations = append(violations, validateMetrics(metrics, &event.Metrics)...)
	} else if raw["metrics"] != nil {
		violations = append(violations, FieldViolation{Field: "metrics", Constraint: "must be an object", Value: raw["metrics"]})
	}

	if tags, present := raw["events"]; present && tags != nil {
		list, ok := tags.([]any)
		if !ok {
			violations = append(violations, FieldViolation{Field: "events", Constraint: "must be an array of strings", Value: tags})
		} else {
			for i, item := range list {
				tag, ok := item.(string)
				if !ok {
					violations = append(violations, FieldViolation{Field: fmt.Sprintf("events[%d]", i), Constraint: "must be a string", Value: item})
					continue
				}
				event.Events = append(event.Events, tag)
			}
		}
	}

	if len(violations) > 0 {
		return Event{}, violations
	}
	return event, nil
}

func validateLocation(raw map[string]any, loc *Location) []FieldViolation {
	var violations []FieldViolation

	lat, ok := numberField(raw, "lat")
	if !ok || lat < -90 || lat > 90 {
		violations = append(violations, FieldViolation{Field: "location.lat", Constraint: "required number in [-90, 90]", Value: raw["lat"]})
	}
	loc.Lat = lat

	lng, ok := numberField(raw, "lng")
	if !ok || lng < -180 || lng > 180 {
		violations = append(violations, FieldViolation{Field: "location.lng", Constraint: "required number in [-180, 180]", Value: raw["lng"]})
	}
	loc.Lng = lng

	if raw["speed"] != nil {
		speed, ok := numberField(raw, "speed")
		if !ok || speed < 0 || speed > 300 {
			violations = append(violations, FieldViolation{Field: "location.speed", Constraint: "must be a number in [0, 300]", Value: raw["speed"]})
		}
		loc.Speed = speed
	}

	if raw["heading"] != nil {
		heading, ok := numberField(raw, "heading")
		if !ok || heading < 0 || heading > 360 {
			violations = append(violations, FieldViolation{Field: "location.heading", Constraint: "must be a number in [0, 360]", Value: raw["heading"]})
		} else {
			loc.Heading = &heading
		}
	}

	if raw["altitude"] != nil {
		altitude, ok := numberField(raw, "altitude")
		if !ok {
			violations = append(violations, FieldViolation{Field: "location.altitude", Constraint: "must be a number", Value: raw["altitude"]})
		} else {
			loc.Altitude = &altitude
		}
	}

	return violations
}

func validateMetrics(raw map[string]any, metrics *Metrics) []FieldViolation {
	var violations []FieldViolation

	check := func(field string, min, max float64, dst **float64) {
		if raw[field] == nil {
			return
		}
		value, ok := numberField(raw, field)
		if !ok || value < min || value > max {
			violations = append(violations, FieldViolation{
				Field:      "metrics." + field,
				Constraint: fmt.Sprintf("must be a number in [%g, %g]", min, max),
				Value:      raw[field],
			})
			return
		}
		*dst = &value
	}

	check("fuelLevel", 0, 100, &metrics.FuelLevel)
	check("rpm", 0, 10000, &metrics.RPM)

	if raw["engineTemp"] != nil {
		temp, ok := numberField(raw, "engineTemp")
		if !ok {
			violations = append(violations, FieldViolation{Field: "metrics.engineTemp", Constraint: "must be a number", Value: raw["engineTemp"]})
		} else {
			metrics.EngineTemp = &temp
		}
	}

	nonNegative := func(field string, dst **float64) {
		if raw[field] == nil {
			return
		}
		value, ok := numberField(raw, field)
		if !ok || value < 0 {
			violations = append(violations, FieldViolation{Field: "metrics." + field, Constraint: "must be a non-negative number", Value: raw[field]})
			return
		}
		*dst = &value
	}

	nonNegative("engineHours", &metrics.EngineHours)
	nonNegative("odometer", &metrics.Odometer)

	if raw["ignition"] != nil {
		ignition, ok := raw["ignition"].(bool)
		if !ok {
			violations = append(violations, FieldViolation{Field: "metrics.ignition", Constraint: "must be a boolean", Value: raw["ignition"]})
		} else {
			metrics.Ignition = &ignition
		}
	}

	return violations
}

func stringField(raw map[string]any, key string) (string, bool) {
	value, ok := raw[key].(string)
	return value, ok
}

func numberField(raw map[string]any, key string) (float64, bool) {
	switch value := raw[key].(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}

func mapField(raw map[string]any, key string) (map[string]any, bool) {
	value, ok := raw[key].(map[string]any)
	return value, ok
}
