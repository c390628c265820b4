// Package wire normalizes heterogeneous device wire formats into the
// canonical telemetry shape. Adapters are pure: no I/O, no rejection.
// Unknown shapes pass through untouched and fail at the validator, which
// owns the accepted-shape contract.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"
)

// ErrShortFrame is returned when a binary frame is shorter than its header.
var ErrShortFrame = errors.New("wire: frame shorter than header")

// Normalize converts a decoded JSON payload into the canonical event shape.
// Payloads already carrying location and metrics pass through unchanged;
// the compact bandwidth-saving shape is expanded; anything else is returned
// as-is for the validator to reject.
func Normalize(raw map[string]any) map[string]any {
	if raw == nil {
		return raw
	}
	if _, hasLocation := raw["location"]; hasLocation {
		if _, hasMetrics := raw["metrics"]; hasMetrics {
			return raw
		}
	}
	if isCompact(raw) {
		return expandCompact(raw)
	}
	return raw
}

func isCompact(raw map[string]any) bool {
	if _, ok := raw["d"].(string); !ok {
		return false
	}
	gps, ok := raw["gps"].([]any)
	return ok && len(gps) >= 2
}

func expandCompact(raw map[string]any) map[string]any {
	gps := raw["gps"].([]any)

	location := map[string]any{
		"lat":   gps[0],
		"lng":   gps[1],
		"speed": numberOr(raw["s"], 0),
	}
	if raw["h"] != nil {
		location["heading"] = raw["h"]
	}

	metrics := map[string]any{}
	if m, ok := raw["m"].(map[string]any); ok {
		if m["f"] != nil {
			metrics["fuelLevel"] = m["f"]
		}
		if m["h"] != nil {
			metrics["engineHours"] = m["h"]
		}
		if m["r"] != nil {
			metrics["rpm"] = m["r"]
		}
		if m["i"] != nil {
			metrics["ignition"] = numberOr(m["i"], 0) == 1
		}
	}

	return map[string]any{
		"deviceId":  raw["d"],
		"timestamp": compactTimestamp(raw["ts"]),
		"location":  location,
		"metrics":   metrics,
	}
}

// compactTimestamp converts the compact shape's epoch-millisecond ts into
// the ISO-8601 instant the canonical shape carries, defaulting to now.
// Sub-second precision is kept; the dedup fingerprint keys on milliseconds,
// so truncating here would merge distinct packets from the same second.
func compactTimestamp(ts any) string {
	if millis, ok := ts.(float64); ok && millis > 0 {
		return time.UnixMilli(int64(millis)).UTC().Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func numberOr(value any, fallback float64) float64 {
	if number, ok := value.(float64); ok {
		return number
	}
	return fallback
}

// binaryHeaderLen is the fixed frame header: a big-endian device-id length
// followed by that many identity bytes; the remainder is the JSON body.
const binaryHeaderLen = 2

// NormalizeBinary parses a framed binary packet into the canonical shape.
// The framing contract exists so TCP transports can be added without
// touching downstream stages; only the header and a JSON body are defined
// so far.
func NormalizeBinary(frame []byte) (map[string]any, error) {
	if len(frame) < binaryHeaderLen {
		return nil, ErrShortFrame
	}
	idLen := int(binary.BigEndian.Uint16(frame[:binaryHeaderLen]))
	if len(frame) < binaryHeaderLen+idLen {
		return nil, ErrShortFrame
	}
	deviceID := string(frame[binaryHeaderLen : binaryHeaderLen+idLen])

	body := map[string]any{}
	if rest := frame[binaryHeaderLen+idLen:]; len(rest) > 0 {
		if err := json.Unmarshal(rest, &body); err != nil {
			return nil, err
		}
	}
	if _, canonical := body["location"]; canonical {
		body["deviceId"] = deviceID
	} else {
		body["d"] = deviceID
	}
	return Normalize(body), nil
}
