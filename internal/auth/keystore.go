package auth

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrUnknownDevice indicates no key material exists for the device.
	ErrUnknownDevice = errors.New("auth: unknown device")
	// ErrDeviceInactive indicates the device key has been deactivated.
	ErrDeviceInactive = errors.New("auth: device inactive")
)

// DeviceKey is the per-device secret material the ingest gate verifies
// signatures against.
type DeviceKey struct {
	DeviceID  string
	TenantID  string
	SecretKey string
	IsActive  bool
}

// DeviceKeyStore looks up device key material. The ingest boundary consumes
// this as a precondition; provisioning of keys happens elsewhere.
type DeviceKeyStore interface {
	Lookup(ctx context.Context, deviceID string) (*DeviceKey, error)
}

const defaultDeviceKeysTable = "device_keys"

// PostgresKeyStore reads device keys from Postgres.
type PostgresKeyStore struct {
	db    *sql.DB
	table string
}

// NewPostgresKeyStore constructs a key store.
func NewPostgresKeyStore(db *sql.DB) *PostgresKeyStore {
	return &PostgresKeyStore{db: db, table: defaultDeviceKeysTable}
}

// Lookup fetches key material for a device.
func (s *PostgresKeyStore) Lookup(ctx context.Context, deviceID string) (*DeviceKey, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("key store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT device_id, tenant_id, secret_key, is_active
FROM `+s.table+`
WHERE device_id = $1`, deviceID)

	var key DeviceKey
	if err := row.Scan(&key.DeviceID, &key.TenantID, &key.SecretKey, &key.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownDevice
		}
		return nil, err
	}
	return &key, nil
}
