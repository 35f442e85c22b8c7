package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Config carries the session-layer settings.
type Config struct {
	// Topic is the single shared topic every participant of every role
	// subscribes to. One topic is what lets host, controllers and views
	// observe each other.
	Topic string
	// Log bounds each session's message log.
	Log LogConfig
	// Clock drives log pruning; nil means the real clock.
	Clock clockwork.Clock
}

// Manager is the process-wide registry of active sessions. It enforces at
// most one live channel per client identity and owns global teardown.
type Manager struct {
	topic     string
	logCfg    LogConfig
	clock     clockwork.Clock
	transport Transport
	ids       *IdentityStore
	logger    *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a connection manager on the given transport.
func NewManager(transport Transport, ids *IdentityStore, cfg Config, logger *zerolog.Logger) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "game"
	}
	return &Manager{
		topic:     topic,
		logCfg:    cfg.Log,
		clock:     clock,
		transport: transport,
		ids:       ids,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Connect resolves an identity and binds a new session to it. If a session
// already exists for that identity it is evicted first: its map entry is
// removed before the replacement is created, and its channel is torn down
// best-effort without being awaited. Two sessions never both hold current
// status for one identity.
func (m *Manager) Connect(ctx context.Context, role, existingID string) (*Session, error) {
	id := m.ids.Resolve(ctx, existingID)

	m.mu.Lock()
	old := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if old != nil {
		m.logger.Info().Str("client_id", id).Msg("evicting existing session for identity")
		old.evict()
	}

	ch, err := m.transport.Channel(ctx, m.topic, id)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	s := newSession(id, role, ch, m.logCfg, m, m.logger)

	m.mu.Lock()
	displaced := m.sessions[id]
	m.sessions[id] = s
	m.mu.Unlock()
	if displaced != nil {
		// A concurrent Connect for the same identity raced us in.
		displaced.evict()
	}

	if err := s.start(ctx); err != nil {
		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		s.evict()
		return nil, fmt.Errorf("subscribe channel: %w", err)
	}

	m.logger.Info().
		Str("client_id", id).
		Str("role", role).
		Str("topic", m.topic).
		Msg("session connected")
	return s, nil
}

// Active returns the number of registered sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// DisconnectAll tears down every registered session and the transport.
// Used on full process teardown; failures are logged and swallowed since
// partial cleanup is acceptable there.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Disconnect(ctx)
	}

	m.mu.Lock()
	empty := len(m.sessions) == 0
	m.mu.Unlock()
	if empty && len(all) == 0 {
		// No session triggered transport teardown, close it directly.
		if err := m.transport.Close(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("transport close failed")
		}
	}
}

// release removes a disconnected session from the registry and tears down
// the transport once the registry empties. Eviction may already have
// replaced the entry; only the current holder is removed.
func (m *Manager) release(ctx context.Context, s *Session) {
	m.mu.Lock()
	if m.sessions[s.clientID] == s {
		delete(m.sessions, s.clientID)
	}
	empty := len(m.sessions) == 0
	m.mu.Unlock()

	if empty {
		if err := m.transport.Close(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("transport close failed")
		}
	}
}
