package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wireplay/internal/config"
	wlog "github.com/vovakirdan/wireplay/internal/log"
)

var (
	cfgPath  string
	logLevel string

	cfg    config.Config
	logger *zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "wireplay",
	Short:        "real-time session relay and client for shared interactive sessions",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = wlog.New(logLevel)

		loaded, path, err := config.Load(logger, cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		cfg.UpdateFrom(config.Config{LogLevel: logLevel})
		logger = wlog.New(cfg.LogLevel)
		logger.Debug().Str("path", path).Msg("config loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd, hostCmd, controllerCmd, viewCmd)
}
