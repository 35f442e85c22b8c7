// Package ws implements the session transport over a websocket connection
// to a relay node.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/session"
)

// Transport dials one websocket connection per channel. Implements
// session.Transport.
type Transport struct {
	url    string
	logger *zerolog.Logger
}

// New builds a transport for the given relay websocket URL.
func New(url string, logger *zerolog.Logger) *Transport {
	return &Transport{url: url, logger: logger}
}

// Channel dials the relay and returns a channel bound to the topic.
func (t *Transport) Channel(ctx context.Context, topic, key string) (session.Channel, error) {
	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		conn:   conn,
		topic:  topic,
		key:    key,
		logger: t.logger,
		cancel: cancel,
	}
	go ch.readLoop(readCtx)
	return ch, nil
}

// Close is a no-op: every channel owns its own connection, so there are no
// transport-wide resources to release.
func (t *Transport) Close(context.Context) error { return nil }

// Channel is one websocket-backed topic binding.
type Channel struct {
	conn   *websocket.Conn
	topic  string
	key    string
	logger *zerolog.Logger
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu          sync.Mutex
	onPresence  func(session.PresenceEvent)
	onBroadcast func(proto.Message)
	onStatus    func(session.SubscribeStatus)
	closed      bool
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

// Subscribe sends the subscription request. The acknowledgment arrives on
// the read loop and is surfaced through onStatus.
func (c *Channel) Subscribe(ctx context.Context, onStatus func(session.SubscribeStatus)) error {
	c.mu.Lock()
	c.onStatus = onStatus
	c.mu.Unlock()

	return c.write(ctx, proto.Frame{Type: proto.FrameSubscribe, Topic: c.topic, Key: c.key})
}

// Track publishes this client's presence record.
func (c *Channel) Track(ctx context.Context, meta proto.PresenceMeta) error {
	payload, err := metaPayload(meta)
	if err != nil {
		return err
	}
	return c.write(ctx, proto.Frame{Type: proto.FrameTrack, Topic: c.topic, Key: c.key, Payload: payload})
}

// Untrack withdraws the presence record.
func (c *Channel) Untrack(ctx context.Context) error {
	return c.write(ctx, proto.Frame{Type: proto.FrameUntrack, Topic: c.topic, Key: c.key})
}

// Broadcast publishes a protocol message to the topic.
func (c *Channel) Broadcast(ctx context.Context, msg proto.Message) error {
	frame, err := proto.BroadcastFrame(c.topic, msg)
	if err != nil {
		return err
	}
	return c.write(ctx, frame)
}

// Unsubscribe tells the relay to drop the subscription and closes the
// connection.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	writeErr := c.write(ctx, proto.Frame{Type: proto.FrameUnsubscribe, Topic: c.topic, Key: c.key})

	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if alreadyClosed {
		return writeErr
	}

	c.cancel()
	closeErr := c.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil && !errors.Is(closeErr, context.Canceled) {
		return closeErr
	}
	return nil
}

func (c *Channel) write(ctx context.Context, frame proto.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, frame)
}

func (c *Channel) readLoop(ctx context.Context) {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			c.handleReadError(err)
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Channel) handleFrame(frame proto.Frame) {
	switch frame.Type {
	case proto.FrameAck:
		ack, err := frame.DecodeAck()
		if err != nil {
			c.logger.Warn().Err(err).Msg("malformed ack frame")
			return
		}
		c.notifyStatus(ackStatus(ack.Status))

	case proto.FramePresence:
		ev, err := presenceEvent(frame)
		if err != nil {
			c.logger.Warn().Err(err).Str("event", frame.Event).Msg("malformed presence frame")
			return
		}
		c.mu.Lock()
		handler := c.onPresence
		c.mu.Unlock()
		if handler != nil {
			handler(ev)
		}

	case proto.FrameBroadcast:
		msg, err := frame.DecodeMessage()
		if err != nil {
			c.logger.Warn().Err(err).Msg("malformed broadcast frame")
			return
		}
		c.mu.Lock()
		handler := c.onBroadcast
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}

	default:
		c.logger.Debug().Str("frame", frame.Type).Msg("ignoring unexpected frame")
	}
}

func (c *Channel) handleReadError(err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed || errors.Is(err, context.Canceled) {
		return
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.notifyStatus(session.StatusClosed)
		return
	}
	c.logger.Warn().Err(err).Str("topic", c.topic).Msg("channel read failed")
	c.notifyStatus(session.StatusError)
}

func (c *Channel) notifyStatus(status session.SubscribeStatus) {
	c.mu.Lock()
	onStatus := c.onStatus
	c.mu.Unlock()
	if onStatus != nil {
		onStatus(status)
	}
}

func ackStatus(status string) session.SubscribeStatus {
	switch status {
	case proto.StatusSubscribed:
		return session.StatusSubscribed
	case proto.StatusClosed:
		return session.StatusClosed
	default:
		return session.StatusError
	}
}

func presenceEvent(frame proto.Frame) (session.PresenceEvent, error) {
	switch frame.Event {
	case proto.EventSync:
		state, err := frame.DecodeState()
		if err != nil {
			return session.PresenceEvent{}, err
		}
		return session.PresenceEvent{Kind: session.PresenceSync, State: state}, nil
	case proto.EventJoin:
		diff, err := frame.DecodeDiff()
		if err != nil {
			return session.PresenceEvent{}, err
		}
		return session.PresenceEvent{Kind: session.PresenceJoin, Key: diff.Key, Joined: diff.NewPresences}, nil
	case proto.EventLeave:
		diff, err := frame.DecodeDiff()
		if err != nil {
			return session.PresenceEvent{}, err
		}
		return session.PresenceEvent{Kind: session.PresenceLeave, Key: diff.Key, Left: diff.LeftPresences}, nil
	default:
		return session.PresenceEvent{}, errors.New("unknown presence event " + frame.Event)
	}
}

func metaPayload(meta proto.PresenceMeta) ([]byte, error) {
	return json.Marshal(meta)
}
