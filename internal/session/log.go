package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vovakirdan/wireplay/internal/proto"
)

// LogConfig bounds the in-memory message log.
type LogConfig struct {
	// MaxLen is the hard length cap; an append that would exceed it drops
	// the oldest entries immediately.
	MaxLen int
	// Retain is the suffix length kept by a prune cycle.
	Retain int
	// PruneInterval is the wall-clock period between prune cycles.
	PruneInterval time.Duration
}

// DefaultLogConfig matches the bounds the relay protocol was tuned for.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		MaxLen:        100,
		Retain:        50,
		PruneInterval: 30 * time.Second,
	}
}

func (c LogConfig) normalized() LogConfig {
	d := DefaultLogConfig()
	if c.MaxLen <= 0 {
		c.MaxLen = d.MaxLen
	}
	if c.Retain <= 0 || c.Retain > c.MaxLen {
		c.Retain = min(d.Retain, c.MaxLen)
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = d.PruneInterval
	}
	return c
}

// Log is the append-only, size-bounded message log a session feeds. Appends
// arrive from the owning session's broadcast handler, which the transport
// may invoke from concurrent deliveries; arbitrary readers observe the log
// through Messages and Watch.
type Log struct {
	cfg   LogConfig
	clock clockwork.Clock

	mu      sync.Mutex
	entries []proto.Message

	view *watchable[[]proto.Message]
}

// NewLog builds a message log. A nil clock uses the real one.
func NewLog(cfg LogConfig, clock clockwork.Clock) *Log {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Log{
		cfg:   cfg.normalized(),
		clock: clock,
		view:  newWatchable([]proto.Message(nil)),
	}
}

// Append adds a received message to the tail. The hard cap is enforced
// here so the log never exceeds MaxLen even between prune cycles.
func (l *Log) Append(msg proto.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, msg)
	if len(l.entries) > l.cfg.MaxLen {
		l.entries = l.entries[len(l.entries)-l.cfg.MaxLen:]
	}
	// Publish while still holding the lock so concurrent appends install
	// their snapshots in append order; set never blocks.
	l.view.set(l.snapshotLocked())
}

// Messages returns a copy of the current ordered sequence.
func (l *Log) Messages() []proto.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Len returns the current number of retained messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Watch delivers the current sequence immediately, then every update.
func (l *Log) Watch() (<-chan []proto.Message, func()) {
	return l.view.watch()
}

// Run prunes the log on a fixed wall-clock interval until ctx is done.
func (l *Log) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(l.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.prune()
		}
	}
}

// prune trims the head once the log has reached its threshold, keeping the
// most recent Retain entries. Retained entries keep their relative order.
func (l *Log) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) < l.cfg.MaxLen {
		return
	}
	l.entries = append([]proto.Message(nil), l.entries[len(l.entries)-l.cfg.Retain:]...)
	l.view.set(l.snapshotLocked())
}

func (l *Log) snapshotLocked() []proto.Message {
	return append([]proto.Message(nil), l.entries...)
}

// Cursor tracks how many log entries a consumer has already processed.
// Counting positions is fragile across a prune: the log shrinks and a naive
// "new since my count" diff would skip or re-detect messages. Next clamps
// the remembered count to the current length before taking the next batch.
type Cursor struct {
	seen int
}

// Next returns the entries this cursor has not yet seen.
func (c *Cursor) Next(entries []proto.Message) []proto.Message {
	if c.seen > len(entries) {
		c.seen = len(entries)
	}
	batch := entries[c.seen:]
	c.seen = len(entries)
	return batch
}
