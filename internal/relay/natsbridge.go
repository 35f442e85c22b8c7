package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/proto"
)

// BridgeConfig holds NATS connection settings for multi-node relay fan-out.
type BridgeConfig struct {
	URL           string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// Bridge republishes every locally received broadcast frame on NATS and
// feeds frames from other relay nodes back into the hub, so clients of
// different relay instances share one logical topic.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	node   string
	logger *zerolog.Logger
	sub    *nats.Subscription
}

type bridgeEnvelope struct {
	Node  string      `json:"node"`
	Topic string      `json:"topic"`
	Frame proto.Frame `json:"frame"`
}

// NewBridge connects to NATS. node tags outgoing envelopes so this instance
// can ignore its own frames coming back.
func NewBridge(cfg BridgeConfig, node string, logger *zerolog.Logger) (*Bridge, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "wireplay"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("wireplay-relay-" + node),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Bridge{
		nc:     nc,
		prefix: cfg.SubjectPrefix,
		node:   node,
		logger: logger,
	}, nil
}

// Start subscribes to the other nodes' broadcasts and routes them into hub.
func (b *Bridge) Start(hub *Hub) error {
	subject := b.prefix + ".broadcast.>"
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env bridgeEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed bridge envelope")
			return
		}
		if env.Node == b.node {
			return
		}
		hub.InjectRemote(env.Topic, env.Frame)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.sub = sub

	b.logger.Info().Str("subject", subject).Msg("NATS bridge started")
	return nil
}

// Publish forwards a locally received broadcast to the other nodes.
// Fire-and-forget: a publish failure is logged, local fan-out already
// happened.
func (b *Bridge) Publish(topicName string, frame proto.Frame) {
	data, err := json.Marshal(bridgeEnvelope{Node: b.node, Topic: topicName, Frame: frame})
	if err != nil {
		b.logger.Error().Err(err).Msg("marshal bridge envelope")
		return
	}
	if err := b.nc.Publish(b.prefix+".broadcast."+topicName, data); err != nil {
		b.logger.Warn().Err(err).Str("topic", topicName).Msg("bridge publish failed")
	}
}

// Close drains the subscription and closes the connection.
func (b *Bridge) Close() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Msg("bridge unsubscribe failed")
		}
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
