package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wireplay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	topic := flag.String("topic", "game", "topic to subscribe to")
	clientID := flag.String("client", "smoke-client", "client id to track presence with")
	role := flag.String("role", "view", "role to track presence with")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(f proto.Frame) error {
		if err := wsjson.Write(ctx, conn, f); err != nil {
			return fmt.Errorf("send %s: %w", f.Type, err)
		}
		return nil
	}

	if err := mustSend(proto.Frame{Type: proto.FrameSubscribe, Topic: *topic}); err != nil {
		return err
	}

	meta, err := json.Marshal(proto.PresenceMeta{
		ClientID: *clientID,
		Role:     *role,
		OnlineAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal presence meta: %w", err)
	}
	if err := mustSend(proto.Frame{Type: proto.FrameTrack, Topic: *topic, Key: *clientID, Payload: meta}); err != nil {
		return err
	}

	update, err := proto.BroadcastFrame(*topic, proto.GameUpdate{
		ClientID:  *clientID,
		Role:      *role,
		GameState: map[string]any{"smoke": true},
	})
	if err != nil {
		return err
	}
	if err := mustSend(update); err != nil {
		return err
	}

	sawSync := false
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received frame: type=%s", frame.Type)
		if frame.Event != "" {
			fmt.Printf(" event=%s", frame.Event)
		}
		fmt.Println()

		switch frame.Type {
		case proto.FrameAck:
			ack, err := frame.DecodeAck()
			if err != nil {
				return err
			}
			fmt.Printf("Ack: status=%s\n", ack.Status)
			if ack.Status == proto.StatusError {
				return fmt.Errorf("subscription failed: %s", ack.Reason)
			}
		case proto.FramePresence:
			if frame.Event != proto.EventSync {
				continue
			}
			state, err := frame.DecodeState()
			if err != nil {
				return err
			}
			fmt.Printf("Presence sync: %d keys\n", len(state))
			sawSync = true
		case proto.FrameBroadcast:
			msg, err := frame.DecodeMessage()
			if err != nil {
				return err
			}
			fmt.Printf("Broadcast: type=%s from=%s\n", msg.MessageType(), msg.SenderID())
			if msg.MessageType() == proto.TypeGameUpdate && sawSync {
				return nil
			}
		}
	}
}
