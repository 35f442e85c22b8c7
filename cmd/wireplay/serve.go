package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wireplay/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		return a.Run(ctx)
	},
}
