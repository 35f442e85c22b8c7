package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wireplay/internal/config"
	wlog "github.com/vovakirdan/wireplay/internal/log"
	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/relay"
	"github.com/vovakirdan/wireplay/internal/session"
	wstransport "github.com/vovakirdan/wireplay/internal/transport/ws"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := relay.NewHub(wlog.Nop())
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(hub, cfg, wlog.Nop())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType, event string) proto.Frame {
	t.Helper()
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if frame.Type == frameType && (event == "" || frame.Event == event) {
			return frame
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := stdhttp.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := stdhttp.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var stats relay.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Node == "" {
		t.Fatal("expected a node id in stats")
	}
}

func TestWebSocketSubscribeTrackBroadcast(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameSubscribe, Topic: "game"}); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}

	ack, err := readFrame(t, ctx, conn, proto.FrameAck, "").DecodeAck()
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != proto.StatusSubscribed {
		t.Fatalf("expected subscribed ack, got %+v", ack)
	}
	readFrame(t, ctx, conn, proto.FramePresence, proto.EventSync)

	meta, _ := json.Marshal(proto.PresenceMeta{ClientID: "c1", Role: "host", OnlineAt: "2026-09-01T00:00:00Z"})
	if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameTrack, Topic: "game", Key: "c1", Payload: meta}); err != nil {
		t.Fatalf("send track: %v", err)
	}

	join, err := readFrame(t, ctx, conn, proto.FramePresence, proto.EventJoin).DecodeDiff()
	if err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if join.Key != "c1" {
		t.Fatalf("unexpected join diff: %+v", join)
	}

	sync, err := readFrame(t, ctx, conn, proto.FramePresence, proto.EventSync).DecodeState()
	if err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if len(sync["c1"]) != 1 || sync["c1"][0].Role != "host" {
		t.Fatalf("unexpected snapshot: %+v", sync)
	}

	outbound, err := proto.BroadcastFrame("game", proto.GameUpdate{
		ClientID:  "c1",
		Role:      "host",
		GameState: map[string]any{"tick": float64(1)},
	})
	if err != nil {
		t.Fatalf("build broadcast: %v", err)
	}
	if err := wsjson.Write(ctx, conn, outbound); err != nil {
		t.Fatalf("send broadcast: %v", err)
	}

	echoed := readFrame(t, ctx, conn, proto.FrameBroadcast, proto.EventMessage)
	msg, err := echoed.DecodeMessage()
	if err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	update, ok := msg.(proto.GameUpdate)
	if !ok {
		t.Fatalf("expected GameUpdate, got %T", msg)
	}
	if update.ClientID != "c1" || update.GameState["tick"] != float64(1) {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestSessionsOverWebSocket(t *testing.T) {
	ts := startTestServer(t)
	logger := wlog.Nop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	newManager := func() *session.Manager {
		transport := wstransport.New(wsURL(ts), logger)
		return session.NewManager(transport, session.NewIdentityStore(nil, logger), session.Config{Topic: "game"}, logger)
	}

	hostMgr := newManager()
	defer hostMgr.DisconnectAll(context.Background())
	padMgr := newManager()
	defer padMgr.DisconnectAll(context.Background())

	host, err := hostMgr.Connect(ctx, session.RoleHost, "host-1")
	if err != nil {
		t.Fatalf("connect host: %v", err)
	}
	pad, err := padMgr.Connect(ctx, session.RoleController, "pad-1")
	if err != nil {
		t.Fatalf("connect controller: %v", err)
	}

	waitFor(t, "both peers see full membership", func() bool {
		return len(host.Clients().Clients()) == 2 && len(pad.Clients().Clients()) == 2
	})

	pad.SendInput(ctx, "action", true)

	waitFor(t, "host receives the input", func() bool {
		for _, msg := range host.Messages().Messages() {
			if input, ok := msg.(proto.PlayerInput); ok {
				return input.ClientID == "pad-1" && input.Input.Button == "action" && input.Input.Pressed
			}
		}
		return false
	})

	host.Send(ctx, map[string]any{"tick": float64(2)})

	waitFor(t, "controller receives the state", func() bool {
		for _, msg := range pad.Messages().Messages() {
			if update, ok := msg.(proto.GameUpdate); ok {
				return update.ClientID == "host-1" && update.GameState["tick"] == float64(2)
			}
		}
		return false
	})

	// teardown propagates: the controller disconnect surfaces on the host side
	pad.Disconnect(ctx)
	waitFor(t, "host sees the controller leave", func() bool {
		clients := host.Clients().Clients()
		return len(clients) == 1 && clients[0].ClientID == "host-1"
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
