package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/relay"
)

// WSHandler upgrades HTTP connections and bridges them to relay peers.
type WSHandler struct {
	hub *relay.Hub
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *relay.Hub, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	peer := relay.NewPeer()
	defer h.hub.Detach(peer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, peer)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, peer)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, peer *relay.Peer) error {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		h.routeFrame(peer, frame)
	}
}

// routeFrame maps a client frame onto a hub operation. Frames with an
// unknown type are dropped; the sync path never fails the connection over
// a single bad frame.
func (h *WSHandler) routeFrame(peer *relay.Peer, frame proto.Frame) {
	switch frame.Type {
	case proto.FrameSubscribe:
		if frame.Topic == "" {
			h.log.Warn().Str("peer", peer.ID).Msg("subscribe without topic")
			return
		}
		h.hub.Subscribe(peer, frame.Topic)
	case proto.FrameUnsubscribe:
		h.hub.Unsubscribe(peer, frame.Topic)
	case proto.FrameTrack:
		var meta proto.PresenceMeta
		if err := json.Unmarshal(frame.Payload, &meta); err != nil {
			h.log.Warn().Err(err).Str("peer", peer.ID).Msg("malformed track payload")
			return
		}
		key := frame.Key
		if key == "" {
			key = meta.ClientID
		}
		h.hub.Track(peer, frame.Topic, key, meta)
	case proto.FrameUntrack:
		h.hub.Untrack(peer, frame.Topic)
	case proto.FrameBroadcast:
		h.hub.Broadcast(peer, frame.Topic, frame)
	default:
		h.log.Debug().Str("peer", peer.ID).Str("frame", frame.Type).Msg("dropping unknown frame")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, peer *relay.Peer) error {
	for {
		select {
		case frame := <-peer.Frames:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("peer", peer.ID).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
