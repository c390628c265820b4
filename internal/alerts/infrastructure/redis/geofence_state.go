package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
)

// GeofenceState stores the per-device inside/outside flag the transition
// detector compares against. Unknown devices report known=false so the
// first sample seeds state without firing.
type GeofenceState struct {
	client *goredis.Client
}

// NewGeofenceState constructs the store.
func NewGeofenceState(client *goredis.Client) (*GeofenceState, error) {
	if client == nil {
		return nil, errors.New("geofence state: nil redis client")
	}
	return &GeofenceState{client: client}, nil
}

// WasInside returns the stored flag and whether any state is known.
func (s *GeofenceState) WasInside(ctx context.Context, deviceID string) (inside, known bool, err error) {
	value, err := s.client.Get(ctx, geofenceKey(deviceID)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == "1", true, nil
}

// SetInside overwrites the stored flag.
func (s *GeofenceState) SetInside(ctx context.Context, deviceID string, inside bool) error {
	value := "0"
	if inside {
		value = "1"
	}
	return s.client.Set(ctx, geofenceKey(deviceID), value, 0).Err()
}

func geofenceKey(deviceID string) string {
	return "geofence:" + deviceID + ":inside"
}
