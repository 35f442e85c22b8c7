package relay

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/proto"
)

// Hub coordinates topics, presence and broadcast fan-out for all connected
// peers. All state is owned by the Run loop; the exported methods only
// enqueue commands, so they are safe from any goroutine.
type Hub struct {
	logger   *zerolog.Logger
	node     string
	commands chan command
	done     chan struct{}
	bridge   *Bridge
}

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
	cmdTrack
	cmdUntrack
	cmdBroadcast
	cmdRemote
	cmdDetach
	cmdStats
)

type command struct {
	kind  commandKind
	peer  *Peer
	topic string
	key   string
	meta  proto.PresenceMeta
	frame proto.Frame
	reply chan Stats
}

// presenceEntry is one tracked registration, in registration order.
type presenceEntry struct {
	peer *Peer
	key  string
	meta proto.PresenceMeta
}

type topic struct {
	name     string
	peers    map[*Peer]struct{}
	presence []presenceEntry
}

// Stats describes the hub's current shape for the stats endpoint.
type Stats struct {
	Node   string                `json:"node"`
	Topics map[string]TopicStats `json:"topics"`
}

// TopicStats counts subscribers and tracked presences of one topic.
type TopicStats struct {
	Peers     int `json:"peers"`
	Presences int `json:"presences"`
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		node:     newID(),
		commands: make(chan command, 256),
		done:     make(chan struct{}),
	}
}

// Node returns this hub instance's identifier, used to tag bridged frames.
func (h *Hub) Node() string { return h.node }

// SetBridge attaches a cross-node bridge. Must be called before Run.
func (h *Hub) SetBridge(b *Bridge) { h.bridge = b }

// Run processes commands until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().Str("node", h.node).Msg("relay hub started")
	defer close(h.done)

	topics := make(map[string]*topic)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("relay hub shutting down")
			return
		case cmd := <-h.commands:
			h.handle(topics, cmd)
		}
	}
}

// Subscribe adds a peer to a topic and acknowledges the subscription.
func (h *Hub) Subscribe(p *Peer, topicName string) {
	h.dispatch(command{kind: cmdSubscribe, peer: p, topic: topicName})
}

// Unsubscribe removes a peer from a topic.
func (h *Hub) Unsubscribe(p *Peer, topicName string) {
	h.dispatch(command{kind: cmdUnsubscribe, peer: p, topic: topicName})
}

// Track registers a presence record for a peer under the given key.
func (h *Hub) Track(p *Peer, topicName, key string, meta proto.PresenceMeta) {
	h.dispatch(command{kind: cmdTrack, peer: p, topic: topicName, key: key, meta: meta})
}

// Untrack withdraws a peer's presence record.
func (h *Hub) Untrack(p *Peer, topicName string) {
	h.dispatch(command{kind: cmdUntrack, peer: p, topic: topicName})
}

// Broadcast fans a frame out to every subscriber of the topic, the sender
// included.
func (h *Hub) Broadcast(p *Peer, topicName string, frame proto.Frame) {
	h.dispatch(command{kind: cmdBroadcast, peer: p, topic: topicName, frame: frame})
}

// InjectRemote fans out a frame that arrived over the bridge from another
// node. It is not re-published to the bridge.
func (h *Hub) InjectRemote(topicName string, frame proto.Frame) {
	h.dispatch(command{kind: cmdRemote, topic: topicName, frame: frame})
}

// Detach removes a dropped peer from every topic it was part of.
func (h *Hub) Detach(p *Peer) {
	h.dispatch(command{kind: cmdDetach, peer: p})
}

// CurrentStats snapshots the hub state.
func (h *Hub) CurrentStats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	h.dispatch(command{kind: cmdStats, reply: reply})
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.done:
		return Stats{}, context.Canceled
	}
}

func (h *Hub) dispatch(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

func (h *Hub) handle(topics map[string]*topic, cmd command) {
	switch cmd.kind {
	case cmdSubscribe:
		t := topics[cmd.topic]
		if t == nil {
			t = &topic{name: cmd.topic, peers: make(map[*Peer]struct{})}
			topics[cmd.topic] = t
		}
		t.peers[cmd.peer] = struct{}{}
		h.send(cmd.peer, proto.AckFrame(t.name, proto.StatusSubscribed, ""))
		// A late subscriber needs the membership it missed.
		h.send(cmd.peer, proto.SyncFrame(t.name, t.state()))
		h.logger.Debug().
			Str("peer", cmd.peer.ID).
			Str("topic", t.name).
			Int("peers", len(t.peers)).
			Msg("peer subscribed")

	case cmdUnsubscribe:
		t := topics[cmd.topic]
		if t == nil {
			return
		}
		h.removePresence(t, cmd.peer)
		delete(t.peers, cmd.peer)
		h.send(cmd.peer, proto.AckFrame(t.name, proto.StatusClosed, ""))
		h.cleanup(topics, t)

	case cmdTrack:
		t := topics[cmd.topic]
		if t == nil || !t.subscribed(cmd.peer) {
			return
		}
		// Re-tracking replaces this peer's previous record.
		t.drop(cmd.peer)
		t.presence = append(t.presence, presenceEntry{peer: cmd.peer, key: cmd.key, meta: cmd.meta})
		h.fanout(t, proto.DiffFrame(t.name, proto.EventJoin, proto.PresenceDiff{
			Key:          cmd.key,
			NewPresences: []proto.PresenceMeta{cmd.meta},
		}))
		h.fanout(t, proto.SyncFrame(t.name, t.state()))

	case cmdUntrack:
		t := topics[cmd.topic]
		if t == nil {
			return
		}
		h.removePresence(t, cmd.peer)

	case cmdBroadcast:
		t := topics[cmd.topic]
		if t == nil || !t.subscribed(cmd.peer) {
			return
		}
		frame := cmd.frame
		frame.Topic = t.name
		h.fanout(t, frame)
		if h.bridge != nil {
			h.bridge.Publish(t.name, frame)
		}

	case cmdRemote:
		t := topics[cmd.topic]
		if t == nil {
			return
		}
		h.fanout(t, cmd.frame)

	case cmdDetach:
		for _, t := range topics {
			if !t.subscribed(cmd.peer) {
				continue
			}
			h.removePresence(t, cmd.peer)
			delete(t.peers, cmd.peer)
			h.cleanup(topics, t)
		}

	case cmdStats:
		stats := Stats{Node: h.node, Topics: make(map[string]TopicStats, len(topics))}
		for name, t := range topics {
			stats.Topics[name] = TopicStats{Peers: len(t.peers), Presences: len(t.presence)}
		}
		cmd.reply <- stats
	}
}

// removePresence withdraws all of a peer's records and, if any were
// withdrawn, notifies the topic with a leave diff and a fresh sync.
func (h *Hub) removePresence(t *topic, p *Peer) {
	left := t.drop(p)
	if len(left) == 0 {
		return
	}
	for _, entry := range left {
		h.fanout(t, proto.DiffFrame(t.name, proto.EventLeave, proto.PresenceDiff{
			Key:           entry.key,
			LeftPresences: []proto.PresenceMeta{entry.meta},
		}))
	}
	h.fanout(t, proto.SyncFrame(t.name, t.state()))
}

func (h *Hub) fanout(t *topic, frame proto.Frame) {
	for p := range t.peers {
		h.send(p, frame)
	}
}

func (h *Hub) send(p *Peer, frame proto.Frame) {
	if !p.push(frame) {
		h.logger.Warn().
			Str("peer", p.ID).
			Str("frame", frame.Type).
			Msg("peer queue full, dropping frame")
	}
}

func (h *Hub) cleanup(topics map[string]*topic, t *topic) {
	if len(t.peers) == 0 && len(t.presence) == 0 {
		delete(topics, t.name)
	}
}

func (t *topic) subscribed(p *Peer) bool {
	_, ok := t.peers[p]
	return ok
}

// drop removes every presence entry owned by the peer, returning them.
func (t *topic) drop(p *Peer) []presenceEntry {
	var removed []presenceEntry
	kept := t.presence[:0]
	for _, entry := range t.presence {
		if entry.peer == p {
			removed = append(removed, entry)
			continue
		}
		kept = append(kept, entry)
	}
	t.presence = kept
	return removed
}

// state builds the authoritative snapshot: key to metas in registration
// order, so the first record per key is the oldest registration.
func (t *topic) state() proto.PresenceState {
	state := make(proto.PresenceState, len(t.presence))
	for _, entry := range t.presence {
		state[entry.key] = append(state[entry.key], entry.meta)
	}
	return state
}
