package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/session"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "run a demo host: owns game state and the button layout",
	RunE:  runHost,
}

func defaultButtons() []proto.ButtonConfig {
	return []proto.ButtonConfig{
		{ID: "up", Label: "Up", Enabled: true},
		{ID: "down", Label: "Down", Enabled: true},
		{ID: "action", Label: "Action", Enabled: true, Color: "#e4572e"},
	}
}

func runHost(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, cleanup := newManager()
	defer cleanup()

	sess, err := m.Connect(ctx, session.RoleHost, clientIDFlag)
	if err != nil {
		return err
	}
	defer teardown(m)
	logger.Info().Str("client_id", sess.ClientID()).Msg("host connected")

	layout := defaultButtons()
	sess.SendButtonConfig(ctx, layout)

	msgs, stopMsgs := sess.Messages().Watch()
	defer stopMsgs()
	clients, stopClients := sess.Clients().Watch()
	defer stopClients()

	var cursor session.Cursor
	state := map[string]any{"tick": 0, "presses": 0}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case list := <-clients:
			logger.Info().Int("clients", len(list)).Msg("presence updated")
		case entries := <-msgs:
			for _, msg := range cursor.Next(entries) {
				if msg.SenderID() == sess.ClientID() {
					continue
				}
				switch msg := msg.(type) {
				case proto.ButtonConfigRequest:
					sess.SendButtonConfig(ctx, layout)
				case proto.PlayerInput:
					if msg.Input.Pressed {
						state["presses"] = state["presses"].(int) + 1
					}
					logger.Info().
						Str("client_id", msg.ClientID).
						Str("button", msg.Input.Button).
						Bool("pressed", msg.Input.Pressed).
						Msg("player input")
				}
			}
		case <-ticker.C:
			state["tick"] = state["tick"].(int) + 1
			sess.Send(ctx, state)
		}
	}
}
