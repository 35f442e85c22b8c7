package store

import "context"

// DeviceStore persists the single per-device client identifier across
// process restarts. Implementations must be safe to skip entirely: the
// session layer treats a missing or failing store as "no persistence".
type DeviceStore interface {
	// LoadClientID returns the persisted identifier, or "" if none is stored.
	LoadClientID(ctx context.Context) (string, error)
	// SaveClientID persists the identifier for this device.
	SaveClientID(ctx context.Context, clientID string) error
	Close() error
}
