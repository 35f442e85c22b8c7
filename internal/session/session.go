package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/proto"
)

// Session roles. The role is an open string on the wire; these three are
// the ones peers act on.
const (
	RoleHost       = "host"
	RoleController = "controller"
	RoleView       = "view"
)

// Session binds one client identity and role to one transport channel. It
// is created by Manager.Connect and destroyed by Disconnect; all inbound
// traffic flows through its handlers into the message log and the presence
// registry, and all outbound traffic goes through its Send methods.
type Session struct {
	clientID string
	role     string

	channel  Channel
	log      *Log
	registry *Registry
	logger   *zerolog.Logger

	subscribed    atomic.Bool
	disconnecting atomic.Bool

	manager *Manager
	stopLog context.CancelFunc
}

func newSession(clientID, role string, ch Channel, logCfg LogConfig, m *Manager, logger *zerolog.Logger) *Session {
	s := &Session{
		clientID: clientID,
		role:     role,
		channel:  ch,
		log:      NewLog(logCfg, m.clock),
		registry: NewRegistry(),
		logger:   logger,
		manager:  m,
	}

	ch.OnPresence(s.handlePresence)
	ch.OnBroadcast(s.handleBroadcast)

	logCtx, cancel := context.WithCancel(context.Background())
	s.stopLog = cancel
	go s.log.Run(logCtx)

	return s
}

// start subscribes the channel and publishes this client's presence record
// on the first subscribed acknowledgment. Later acknowledgments of the same
// state are no-ops.
func (s *Session) start(ctx context.Context) error {
	return s.channel.Subscribe(ctx, func(status SubscribeStatus) {
		if status != StatusSubscribed {
			s.logger.Debug().
				Str("client_id", s.clientID).
				Str("status", string(status)).
				Msg("channel status")
			return
		}
		if !s.subscribed.CompareAndSwap(false, true) {
			return
		}
		meta := proto.PresenceMeta{
			ClientID: s.clientID,
			Role:     s.role,
			OnlineAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.channel.Track(context.Background(), meta); err != nil {
			s.logger.Warn().Err(err).Str("client_id", s.clientID).Msg("presence track failed")
		}
	})
}

// ClientID returns the identity this session is bound to.
func (s *Session) ClientID() string { return s.clientID }

// Role returns the role supplied at connect time.
func (s *Session) Role() string { return s.role }

// Messages exposes the session's bounded message log.
func (s *Session) Messages() *Log { return s.log }

// Clients exposes the session's presence registry.
func (s *Session) Clients() *Registry { return s.registry }

// handlePresence projects transport presence events into the registry. A
// sync snapshot is authoritative and complete, so the connected set is
// replaced wholesale, one client per presence key, first record per key.
func (s *Session) handlePresence(ev PresenceEvent) {
	switch ev.Kind {
	case PresenceSync:
		keys := make([]string, 0, len(ev.State))
		for key := range ev.State {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		clients := make([]ConnectedClient, 0, len(keys))
		for _, key := range keys {
			metas := ev.State[key]
			if len(metas) == 0 {
				continue
			}
			clients = append(clients, ConnectedClient{
				ClientID: metas[0].ClientID,
				Role:     metas[0].Role,
			})
		}
		s.registry.replace(clients)
	case PresenceJoin:
		s.logger.Debug().Str("key", ev.Key).Int("presences", len(ev.Joined)).Msg("client joined")
	case PresenceLeave:
		s.logger.Debug().Str("key", ev.Key).Int("presences", len(ev.Left)).Msg("client left")
	}
}

// handleBroadcast is the sole ingestion point for protocol messages,
// including this session's own broadcasts that round-trip back.
func (s *Session) handleBroadcast(msg proto.Message) {
	s.log.Append(msg)
}

// Send broadcasts a game state patch. Fire-and-forget: failures are logged,
// never surfaced.
func (s *Session) Send(ctx context.Context, gameState map[string]any) {
	s.publish(ctx, proto.GameUpdate{
		ClientID:  s.clientID,
		Role:      s.role,
		GameState: gameState,
	})
}

// SendInput broadcasts one button transition.
func (s *Session) SendInput(ctx context.Context, button string, pressed bool) {
	s.publish(ctx, proto.PlayerInput{
		ClientID: s.clientID,
		Role:     s.role,
		Input:    proto.InputState{Button: button, Pressed: pressed},
	})
}

// SendButtonConfig broadcasts a full replacement of the controller layout.
func (s *Session) SendButtonConfig(ctx context.Context, buttons []proto.ButtonConfig) {
	s.publish(ctx, proto.ButtonConfigUpdate{
		ClientID: s.clientID,
		Role:     s.role,
		Buttons:  buttons,
	})
}

// RequestButtonConfig asks the host to re-broadcast the current layout.
func (s *Session) RequestButtonConfig(ctx context.Context) {
	s.publish(ctx, proto.ButtonConfigRequest{
		ClientID: s.clientID,
		Role:     s.role,
	})
}

func (s *Session) publish(ctx context.Context, msg proto.Message) {
	if err := s.channel.Broadcast(ctx, msg); err != nil {
		s.logger.Warn().
			Err(err).
			Str("client_id", s.clientID).
			Str("message_type", string(msg.MessageType())).
			Msg("broadcast failed")
	}
}

// Disconnect tears the session down. Idempotent: a re-entrant or concurrent
// call while teardown is in flight is a no-op. Untrack and unsubscribe run
// concurrently and both are waited for regardless of individual failure;
// the session then deregisters itself, and the transport is torn down once
// no sessions remain.
func (s *Session) Disconnect(ctx context.Context) {
	if !s.disconnecting.CompareAndSwap(false, true) {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.channel.Untrack(ctx); err != nil {
			s.logger.Warn().Err(err).Str("client_id", s.clientID).Msg("untrack failed")
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.channel.Unsubscribe(ctx); err != nil {
			s.logger.Warn().Err(err).Str("client_id", s.clientID).Msg("unsubscribe failed")
		}
	}()
	wg.Wait()

	s.stopLog()
	s.manager.release(ctx, s)
}

// evict is the manager's teardown path when a new session replaces this one
// for the same identity. Best-effort and not awaited; the replacement owns
// the identity from the moment the registry entry is swapped.
func (s *Session) evict() {
	if !s.disconnecting.CompareAndSwap(false, true) {
		return
	}
	s.stopLog()
	go func() {
		if err := s.channel.Unsubscribe(context.Background()); err != nil {
			s.logger.Debug().Err(err).Str("client_id", s.clientID).Msg("evicted channel unsubscribe failed")
		}
	}()
}
