package main

import (
	"context"
	"time"

	wlog "github.com/vovakirdan/wireplay/internal/log"
	"github.com/vovakirdan/wireplay/internal/session"
	"github.com/vovakirdan/wireplay/internal/store"
	"github.com/vovakirdan/wireplay/internal/store/sqlite"
	"github.com/vovakirdan/wireplay/internal/transport/ws"
)

var clientIDFlag string

func init() {
	hostCmd.Flags().StringVar(&clientIDFlag, "client-id", "", "reuse an explicit client identity")
	controllerCmd.Flags().StringVar(&clientIDFlag, "client-id", "", "reuse an explicit client identity")
	viewCmd.Flags().StringVar(&clientIDFlag, "client-id", "", "reuse an explicit client identity")
}

// newManager wires the session stack for the demo peers: sqlite-backed
// identity, websocket transport, log bounds from config.
func newManager() (*session.Manager, func()) {
	var devices store.DeviceStore
	if st, err := sqlite.New(cfg.DatabasePath); err != nil {
		logger.Warn().Err(err).Str("path", cfg.DatabasePath).Msg("device store unavailable, identity will not persist")
	} else {
		devices = st
	}

	sessionLog := wlog.Component(logger, "session")
	ids := session.NewIdentityStore(devices, sessionLog)
	transport := ws.New(cfg.ServerURL, sessionLog)
	m := session.NewManager(transport, ids, session.Config{
		Topic: cfg.Topic,
		Log: session.LogConfig{
			MaxLen:        cfg.MessageLogMax,
			Retain:        cfg.MessageLogRetain,
			PruneInterval: cfg.MessageLogInterval,
		},
	}, sessionLog)

	cleanup := func() {
		if devices != nil {
			devices.Close()
		}
	}
	return m, cleanup
}

// teardown mirrors page unload: a fire-and-forget disconnect with a short
// grace period so process exit is never held hostage by the network.
func teardown(m *session.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.DisconnectAll(ctx)
}
