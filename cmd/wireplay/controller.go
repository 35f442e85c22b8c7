package main

import (
	"bufio"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wireplay/internal/proto"
	"github.com/vovakirdan/wireplay/internal/session"
)

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "run a demo controller: type a button id and press enter to tap it",
	RunE:  runController,
}

func runController(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, cleanup := newManager()
	defer cleanup()

	sess, err := m.Connect(ctx, session.RoleController, clientIDFlag)
	if err != nil {
		return err
	}
	defer teardown(m)
	logger.Info().Str("client_id", sess.ClientID()).Msg("controller connected")

	sess.RequestButtonConfig(ctx)

	msgs, stopMsgs := sess.Messages().Watch()
	defer stopMsgs()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	var cursor session.Cursor
	for {
		select {
		case <-ctx.Done():
			return nil
		case entries := <-msgs:
			for _, msg := range cursor.Next(entries) {
				if msg, ok := msg.(proto.ButtonConfigUpdate); ok {
					for _, b := range msg.Buttons {
						logger.Info().
							Str("id", b.ID).
							Str("label", b.Label).
							Bool("enabled", b.Enabled).
							Msg("button available")
					}
				}
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			// a full tap: press immediately followed by release
			sess.SendInput(ctx, line, true)
			sess.SendInput(ctx, line, false)
		}
	}
}
