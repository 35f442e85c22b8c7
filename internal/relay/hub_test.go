package relay

import (
	"context"
	"testing"
	"time"

	wlog "github.com/vovakirdan/wireplay/internal/log"
	"github.com/vovakirdan/wireplay/internal/proto"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(wlog.Nop())
	go hub.Run(ctx)
	return hub
}

func mustFrame(t *testing.T, p *Peer, frameType, event string) proto.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-p.Frames:
			if f.Type == frameType && (event == "" || f.Event == event) {
				return f
			}
		case <-deadline:
			t.Fatalf("expected frame %s/%s not received", frameType, event)
		}
	}
}

func meta(id, role string) proto.PresenceMeta {
	return proto.PresenceMeta{ClientID: id, Role: role, OnlineAt: "2026-09-01T00:00:00Z"}
}

func TestSubscribeAcksAndDeliversSnapshot(t *testing.T) {
	hub := startHub(t)

	early := NewPeer()
	hub.Subscribe(early, "game")
	mustFrame(t, early, proto.FrameAck, "")
	hub.Track(early, "game", "c1", meta("c1", "host"))
	mustFrame(t, early, proto.FramePresence, proto.EventJoin)

	// a late subscriber receives the ack and the membership it missed
	late := NewPeer()
	hub.Subscribe(late, "game")

	ack := mustFrame(t, late, proto.FrameAck, "")
	status, err := ack.DecodeAck()
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if status.Status != proto.StatusSubscribed {
		t.Fatalf("expected subscribed ack, got %+v", status)
	}

	sync := mustFrame(t, late, proto.FramePresence, proto.EventSync)
	state, err := sync.DecodeState()
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state["c1"]) != 1 || state["c1"][0].Role != "host" {
		t.Fatalf("expected existing presence in snapshot, got %+v", state)
	}
}

func TestTrackNotifiesTopicWithJoinAndSync(t *testing.T) {
	hub := startHub(t)

	a := NewPeer()
	b := NewPeer()
	hub.Subscribe(a, "game")
	hub.Subscribe(b, "game")

	hub.Track(b, "game", "c2", meta("c2", "controller"))

	join := mustFrame(t, a, proto.FramePresence, proto.EventJoin)
	diff, err := join.DecodeDiff()
	if err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if diff.Key != "c2" || len(diff.NewPresences) != 1 || diff.NewPresences[0].Role != "controller" {
		t.Fatalf("unexpected join diff: %+v", diff)
	}

	sync := mustFrame(t, a, proto.FramePresence, proto.EventSync)
	state, err := sync.DecodeState()
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state) != 1 || len(state["c2"]) != 1 {
		t.Fatalf("unexpected snapshot after join: %+v", state)
	}
}

func TestRetrackReplacesPresenceRecord(t *testing.T) {
	hub := startHub(t)

	p := NewPeer()
	hub.Subscribe(p, "game")
	hub.Track(p, "game", "c1", meta("c1", "view"))
	hub.Track(p, "game", "c1", meta("c1", "controller"))

	mustFrame(t, p, proto.FramePresence, proto.EventJoin)
	mustFrame(t, p, proto.FramePresence, proto.EventSync)
	mustFrame(t, p, proto.FramePresence, proto.EventJoin)
	sync := mustFrame(t, p, proto.FramePresence, proto.EventSync)

	state, err := sync.DecodeState()
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state["c1"]) != 1 || state["c1"][0].Role != "controller" {
		t.Fatalf("expected the re-track to replace the record, got %+v", state["c1"])
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stats, err := hub.CurrentStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Topics["game"].Presences != 1 {
		t.Fatalf("expected one presence record, got %d", stats.Topics["game"].Presences)
	}
}

func TestBroadcastFansOutIncludingSender(t *testing.T) {
	hub := startHub(t)

	a := NewPeer()
	b := NewPeer()
	hub.Subscribe(a, "game")
	hub.Subscribe(b, "game")

	frame, err := proto.BroadcastFrame("game", proto.GameUpdate{
		ClientID:  "c1",
		Role:      "host",
		GameState: map[string]any{"tick": 1},
	})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	hub.Broadcast(a, "game", frame)

	for _, p := range []*Peer{a, b} {
		got := mustFrame(t, p, proto.FrameBroadcast, proto.EventMessage)
		msg, err := got.DecodeMessage()
		if err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.SenderID() != "c1" {
			t.Fatalf("unexpected sender: %s", msg.SenderID())
		}
	}
}

func TestBroadcastWithoutSubscriptionIsDropped(t *testing.T) {
	hub := startHub(t)

	member := NewPeer()
	hub.Subscribe(member, "game")
	mustFrame(t, member, proto.FrameAck, "")

	stranger := NewPeer()
	frame, err := proto.BroadcastFrame("game", proto.ClientJoined{ClientID: "x"})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	hub.Broadcast(stranger, "game", frame)

	// drain the subscribe sync, then confirm nothing else arrives
	mustFrame(t, member, proto.FramePresence, proto.EventSync)
	select {
	case f := <-member.Frames:
		t.Fatalf("unexpected frame: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDetachWithdrawsPresenceEverywhere(t *testing.T) {
	hub := startHub(t)

	watcher := NewPeer()
	hub.Subscribe(watcher, "game")

	dropped := NewPeer()
	hub.Subscribe(dropped, "game")
	hub.Track(dropped, "game", "c9", meta("c9", "controller"))
	mustFrame(t, watcher, proto.FramePresence, proto.EventJoin)
	mustFrame(t, watcher, proto.FramePresence, proto.EventSync)

	hub.Detach(dropped)

	leave := mustFrame(t, watcher, proto.FramePresence, proto.EventLeave)
	diff, err := leave.DecodeDiff()
	if err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if diff.Key != "c9" || len(diff.LeftPresences) != 1 {
		t.Fatalf("unexpected leave diff: %+v", diff)
	}

	sync := mustFrame(t, watcher, proto.FramePresence, proto.EventSync)
	state, err := sync.DecodeState()
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state) != 0 {
		t.Fatalf("expected empty snapshot after detach, got %+v", state)
	}
}

func TestStatsReflectsTopicShape(t *testing.T) {
	hub := startHub(t)

	a := NewPeer()
	b := NewPeer()
	hub.Subscribe(a, "game")
	hub.Subscribe(b, "game")
	hub.Track(a, "game", "c1", meta("c1", "host"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var stats Stats
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		stats, err = hub.CurrentStats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Topics["game"].Peers == 2 && stats.Topics["game"].Presences == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("unexpected stats: %+v", stats)
}
