// Package memory provides an in-process session transport with the same
// channel semantics as the relay: shared topics, presence tracking with
// authoritative sync snapshots, and broadcast fan-out that includes the
// sender. It backs tests and offline demos.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/session"
)

// Broker is the in-process counterpart of a relay node.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topicState
}

type topicState struct {
	members  map[*Channel]struct{}
	presence []presenceEntry
}

type presenceEntry struct {
	ch   *Channel
	key  string
	meta proto.PresenceMeta
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topicState)}
}

// Channel opens a channel on a topic. Implements session.Transport.
func (b *Broker) Channel(_ context.Context, topic, key string) (session.Channel, error) {
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &Channel{broker: b, topic: topic, key: key}, nil
}

// Close drops every topic. Channels opened later start fresh.
func (b *Broker) Close(context.Context) error {
	b.mu.Lock()
	b.topics = make(map[string]*topicState)
	b.mu.Unlock()
	return nil
}

func (b *Broker) topicLocked(name string) *topicState {
	t := b.topics[name]
	if t == nil {
		t = &topicState{members: make(map[*Channel]struct{})}
		b.topics[name] = t
	}
	return t
}

// Channel is one in-process topic binding.
type Channel struct {
	broker *Broker
	topic  string
	key    string

	mu          sync.Mutex
	onPresence  func(session.PresenceEvent)
	onBroadcast func(proto.Message)
	onStatus    func(session.SubscribeStatus)
	subscribed  bool
}

// OnPresence registers the presence handler.
func (c *Channel) OnPresence(handler func(session.PresenceEvent)) {
	c.mu.Lock()
	c.onPresence = handler
	c.mu.Unlock()
}

// OnBroadcast registers the broadcast handler.
func (c *Channel) OnBroadcast(handler func(proto.Message)) {
	c.mu.Lock()
	c.onBroadcast = handler
	c.mu.Unlock()
}

// Subscribe joins the topic and acknowledges synchronously, then delivers
// the current presence snapshot.
func (c *Channel) Subscribe(_ context.Context, onStatus func(session.SubscribeStatus)) error {
	c.mu.Lock()
	c.onStatus = onStatus
	c.subscribed = true
	c.mu.Unlock()

	b := c.broker
	b.mu.Lock()
	t := b.topicLocked(c.topic)
	t.members[c] = struct{}{}
	state := t.stateLocked()
	b.mu.Unlock()

	if onStatus != nil {
		onStatus(session.StatusSubscribed)
	}
	c.deliverPresence(session.PresenceEvent{Kind: session.PresenceSync, State: state})
	return nil
}

// Track registers this channel's presence record and notifies the topic.
func (c *Channel) Track(_ context.Context, meta proto.PresenceMeta) error {
	b := c.broker
	b.mu.Lock()
	t := b.topics[c.topic]
	if t == nil {
		b.mu.Unlock()
		return errors.New("channel not subscribed")
	}
	t.dropLocked(c)
	t.presence = append(t.presence, presenceEntry{ch: c, key: c.key, meta: meta})
	members := t.membersLocked()
	state := t.stateLocked()
	b.mu.Unlock()

	for _, m := range members {
		m.deliverPresence(session.PresenceEvent{
			Kind:   session.PresenceJoin,
			Key:    c.key,
			Joined: []proto.PresenceMeta{meta},
		})
	}
	for _, m := range members {
		m.deliverPresence(session.PresenceEvent{Kind: session.PresenceSync, State: state})
	}
	return nil
}

// Untrack withdraws the presence record and notifies the topic.
func (c *Channel) Untrack(context.Context) error {
	c.withdraw()
	return nil
}

// Broadcast fans a message out to every member, the sender included.
func (c *Channel) Broadcast(_ context.Context, msg proto.Message) error {
	b := c.broker
	b.mu.Lock()
	t := b.topics[c.topic]
	if t == nil || !t.member(c) {
		b.mu.Unlock()
		return errors.New("channel not subscribed")
	}
	members := t.membersLocked()
	b.mu.Unlock()

	for _, m := range members {
		m.deliverBroadcast(msg)
	}
	return nil
}

// Unsubscribe leaves the topic, withdrawing any presence record first.
func (c *Channel) Unsubscribe(context.Context) error {
	c.withdraw()

	b := c.broker
	b.mu.Lock()
	if t := b.topics[c.topic]; t != nil {
		delete(t.members, c)
		if len(t.members) == 0 && len(t.presence) == 0 {
			delete(b.topics, c.topic)
		}
	}
	b.mu.Unlock()

	c.mu.Lock()
	c.subscribed = false
	onStatus := c.onStatus
	c.mu.Unlock()
	if onStatus != nil {
		onStatus(session.StatusClosed)
	}
	return nil
}

func (c *Channel) withdraw() {
	b := c.broker
	b.mu.Lock()
	t := b.topics[c.topic]
	if t == nil {
		b.mu.Unlock()
		return
	}
	removed := t.dropLocked(c)
	if len(removed) == 0 {
		b.mu.Unlock()
		return
	}
	members := t.membersLocked()
	state := t.stateLocked()
	b.mu.Unlock()

	for _, entry := range removed {
		for _, m := range members {
			m.deliverPresence(session.PresenceEvent{
				Kind: session.PresenceLeave,
				Key:  entry.key,
				Left: []proto.PresenceMeta{entry.meta},
			})
		}
	}
	for _, m := range members {
		m.deliverPresence(session.PresenceEvent{Kind: session.PresenceSync, State: state})
	}
}

func (c *Channel) deliverPresence(ev session.PresenceEvent) {
	c.mu.Lock()
	handler := c.onPresence
	subscribed := c.subscribed
	c.mu.Unlock()
	if handler != nil && subscribed {
		handler(ev)
	}
}

func (c *Channel) deliverBroadcast(msg proto.Message) {
	c.mu.Lock()
	handler := c.onBroadcast
	subscribed := c.subscribed
	c.mu.Unlock()
	if handler != nil && subscribed {
		handler(msg)
	}
}

func (t *topicState) member(c *Channel) bool {
	_, ok := t.members[c]
	return ok
}

func (t *topicState) membersLocked() []*Channel {
	out := make([]*Channel, 0, len(t.members))
	for m := range t.members {
		out = append(out, m)
	}
	return out
}

func (t *topicState) dropLocked(c *Channel) []presenceEntry {
	var removed []presenceEntry
	kept := t.presence[:0]
	for _, entry := range t.presence {
		if entry.ch == c {
			removed = append(removed, entry)
			continue
		}
		kept = append(kept, entry)
	}
	t.presence = kept
	return removed
}

func (t *topicState) stateLocked() proto.PresenceState {
	state := make(proto.PresenceState, len(t.presence))
	for _, entry := range t.presence {
		state[entry.key] = append(state[entry.key], entry.meta)
	}
	return state
}
