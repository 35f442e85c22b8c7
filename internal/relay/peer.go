package relay

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/vovakirdan/wireplay/internal/proto"
)

// Peer is one connected transport client as seen by the hub. The transport
// layer drains Frames into the underlying connection.
type Peer struct {
	ID     string
	Frames chan proto.Frame
}

// NewPeer constructs a peer with an initialized outbound queue.
func NewPeer() *Peer {
	return &Peer{
		ID:     newID(),
		Frames: make(chan proto.Frame, 64),
	}
}

// push enqueues a frame without blocking the hub. Slow consumers lose
// frames rather than stalling everyone else.
func (p *Peer) push(f proto.Frame) bool {
	select {
	case p.Frames <- f:
		return true
	default:
		return false
	}
}

// newID returns a best-effort unique identifier.
func newID() string {
	const size = 12

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
