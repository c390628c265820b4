package auth

import "context"

type contextKey string

const contextKeyDevice contextKey = "auth.device"

// DeviceIdentity is the verified identity of a reporting device.
type DeviceIdentity struct {
	DeviceID string
	TenantID string
}

// WithDeviceIdentity stores the verified device identity in context.
func WithDeviceIdentity(ctx context.Context, identity DeviceIdentity) context.Context {
	return context.WithValue(ctx, contextKeyDevice, identity)
}

// DeviceIdentityFromContext extracts the verified device identity.
func DeviceIdentityFromContext(ctx context.Context) (DeviceIdentity, bool) {
	if ctx == nil {
		return DeviceIdentity{}, false
	}
	identity, ok := ctx.Value(contextKeyDevice).(DeviceIdentity)
	return identity, ok
}
