package analytics

import (
	"time"

	telemetry "fleet-cloud/internal/telemetry/domain"
)

const (
	// DefaultTickSeconds is attributed to an event with no previous
	// reading to compare against.
	DefaultTickSeconds = 10
	// MaxTickSeconds caps the duration one event may contribute, so a
	// long silence does not book hours of engine time on a single tick.
	MaxTickSeconds = 60
)

// UtilizationTick is one event's contribution to the daily aggregate.
type UtilizationTick struct {
	Day           time.Time
	DistanceDelta float64
	EngineOnSecs  float64
	IdleSecs      float64
}

// DailyUtilization is one accumulated row keyed by tenant, machine, day.
type DailyUtilization struct {
	TenantID      string
	MachineID     string
	Day           time.Time
	TotalDistance float64
	EngineOnSecs  float64
	IdleSecs      float64
}

// ComputeTick derives an event's utilization contribution from the gap to
// the previous reading. Distance is clamped at zero so odometer resets
// never subtract from the total.
func ComputeTick(prev *telemetry.PreviousState, event telemetry.Event) UtilizationTick {
	tick := UtilizationTick{Day: dayOf(event.Timestamp)}

	seconds := float64(DefaultTickSeconds)
	if prev != nil {
		gap := event.Timestamp.Sub(prev.Timestamp).Seconds()
		if gap < 0 {
			gap = 0
		}
		if gap > MaxTickSeconds {
			gap = MaxTickSeconds
		}
		seconds = gap

		if prev.Odometer != nil && event.Metrics.Odometer != nil {
			if delta := *event.Metrics.Odometer - *prev.Odometer; delta > 0 {
				tick.DistanceDelta = delta
			}
		}
	}

	ignitionOn := event.Metrics.Ignition != nil && *event.Metrics.Ignition
	if ignitionOn {
		tick.EngineOnSecs = seconds
		if event.Location.Speed < 1 {
			tick.IdleSecs = seconds
		}
	}
	return tick
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
