package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/session"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "run a demo view: prints game state and the participant list",
	RunE:  runView,
}

func runView(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, cleanup := newManager()
	defer cleanup()

	sess, err := m.Connect(ctx, session.RoleView, clientIDFlag)
	if err != nil {
		return err
	}
	defer teardown(m)
	logger.Info().Str("client_id", sess.ClientID()).Msg("view connected")

	msgs, stopMsgs := sess.Messages().Watch()
	defer stopMsgs()
	clients, stopClients := sess.Clients().Watch()
	defer stopClients()

	var cursor session.Cursor
	for {
		select {
		case <-ctx.Done():
			return nil
		case list := <-clients:
			for _, c := range list {
				logger.Info().Str("client_id", c.ClientID).Str("role", c.Role).Msg("participant")
			}
		case entries := <-msgs:
			for _, msg := range cursor.Next(entries) {
				if msg, ok := msg.(proto.GameUpdate); ok {
					logger.Info().Interface("state", msg.GameState).Msg("game state")
				}
			}
		}
	}
}
