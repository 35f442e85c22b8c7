package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/store"
)

// IdentityStore resolves the per-device client identifier. A nil or failing
// DeviceStore degrades to in-memory identity for the process lifetime;
// persistence problems never block session setup.
type IdentityStore struct {
	devices store.DeviceStore
	log     *zerolog.Logger
}

// NewIdentityStore builds an identity store. devices may be nil.
func NewIdentityStore(devices store.DeviceStore, logger *zerolog.Logger) *IdentityStore {
	return &IdentityStore{devices: devices, log: logger}
}

// Resolve returns the identity to bind a session to. An explicit existingID
// is reused verbatim without touching persistence. Otherwise the persisted
// device identity is recovered, or a fresh one is generated and persisted.
func (s *IdentityStore) Resolve(ctx context.Context, existingID string) string {
	if existingID != "" {
		return existingID
	}

	if s.devices != nil {
		id, err := s.devices.LoadClientID(ctx)
		if err != nil {
			s.log.Debug().Err(err).Msg("device store unavailable, using in-memory identity")
		} else if id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if s.devices != nil {
		if err := s.devices.SaveClientID(ctx, id); err != nil {
			s.log.Debug().Err(err).Msg("failed to persist client id")
		}
	}
	return id
}
