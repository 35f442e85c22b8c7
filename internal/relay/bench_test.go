package relay

import (
	"context"
	"testing"

	wlog "github.com/vovakirdan/wireplay/internal/log"
	"github.com/vovakirdan/wireplay/internal/proto"
)

func benchmarkTopicBroadcast(b *testing.B, subscribers int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(wlog.Nop())
	go hub.Run(ctx)

	sender := NewPeer()
	hub.Subscribe(sender, "bench")

	peers := make([]*Peer, 0, subscribers)
	for i := 0; i < subscribers; i++ {
		p := NewPeer()
		hub.Subscribe(p, "bench")
		peers = append(peers, p)
	}

	// Drain all but the first subscriber so full queues do not skew the run.
	target := peers[0]
	for _, p := range append(peers[1:], sender) {
		go func(pr *Peer) {
			for range pr.Frames {
			}
		}(p)
	}
	// Consume the acks and snapshots delivered on subscribe.
	for f := <-target.Frames; f.Type != proto.FramePresence; f = <-target.Frames {
	}

	frame, err := proto.BroadcastFrame("bench", proto.GameUpdate{
		ClientID:  "sender",
		Role:      "host",
		GameState: map[string]any{"tick": 1},
	})
	if err != nil {
		b.Fatalf("build frame: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Broadcast(sender, "bench", frame)
		<-target.Frames
	}
}

func BenchmarkTopicBroadcast_10(b *testing.B)  { benchmarkTopicBroadcast(b, 10) }
func BenchmarkTopicBroadcast_100(b *testing.B) { benchmarkTopicBroadcast(b, 100) }
func BenchmarkTopicBroadcast_500(b *testing.B) { benchmarkTopicBroadcast(b, 500) }
