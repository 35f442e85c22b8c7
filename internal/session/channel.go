package session

import (
	"context"

	"github.com/vovakirdan/wireplay/internal/proto"
)

// SubscribeStatus mirrors the transport's subscription acknowledgment states.
// The status callback may fire more than once for the same state; callers
// guard against duplicates themselves.
type SubscribeStatus string

const (
	StatusSubscribed SubscribeStatus = "subscribed"
	StatusClosed     SubscribeStatus = "closed"
	StatusError      SubscribeStatus = "error"
)

// PresenceEventKind distinguishes the three presence notifications.
type PresenceEventKind int

const (
	// PresenceSync carries the full authoritative membership snapshot.
	PresenceSync PresenceEventKind = iota
	// PresenceJoin reports presences that appeared under a key.
	PresenceJoin
	// PresenceLeave reports presences that disappeared from a key.
	PresenceLeave
)

// PresenceEvent is one transport-level presence notification.
type PresenceEvent struct {
	Kind   PresenceEventKind
	State  proto.PresenceState // set for PresenceSync
	Key    string              // set for PresenceJoin and PresenceLeave
	Joined []proto.PresenceMeta
	Left   []proto.PresenceMeta
}

// Channel is one pub/sub topic binding on the real-time transport. Handler
// registration happens before Subscribe; handlers may be invoked from the
// transport's read loop at any time until Unsubscribe completes.
type Channel interface {
	OnPresence(handler func(PresenceEvent))
	OnBroadcast(handler func(proto.Message))

	// Subscribe opens the topic subscription. onStatus is invoked on every
	// acknowledgment the transport delivers, possibly repeatedly.
	Subscribe(ctx context.Context, onStatus func(SubscribeStatus)) error
	// Track registers this client's presence record under its key.
	Track(ctx context.Context, meta proto.PresenceMeta) error
	// Untrack withdraws the presence record.
	Untrack(ctx context.Context) error
	// Broadcast publishes a protocol message to every subscriber of the
	// topic, the sender included.
	Broadcast(ctx context.Context, msg proto.Message) error
	// Unsubscribe closes the topic subscription and releases the channel.
	Unsubscribe(ctx context.Context) error
}

// Transport opens channels on a shared session topic. Close tears down any
// transport-wide resources once no channels remain; implementations must
// allow Channel to be called again afterwards.
type Transport interface {
	Channel(ctx context.Context, topic, key string) (Channel, error)
	Close(ctx context.Context) error
}
