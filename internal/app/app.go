package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireplay/internal/config"
	"github.com/vovakirdan/wireplay/internal/log"
	"github.com/vovakirdan/wireplay/internal/relay"
	transporthttp "github.com/vovakirdan/wireplay/internal/transport/http"
)

// App wires the relay hub, the optional NATS bridge and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *relay.Hub
	bridge          *relay.Bridge
	log             *zerolog.Logger
}

// New constructs the relay application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	hub := relay.NewHub(log.Component(logger, "relay"))

	var bridge *relay.Bridge
	if cfg.NATSURL != "" {
		b, err := relay.NewBridge(relay.BridgeConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
		}, hub.Node(), log.Component(logger, "bridge"))
		if err != nil {
			return nil, err
		}
		hub.SetBridge(b)
		bridge = b
		logger.Info().Str("url", cfg.NATSURL).Msg("NATS bridge enabled")
	}

	server := transporthttp.NewServer(hub, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		bridge:          bridge,
		log:             logger,
	}, nil
}

// Run starts the relay and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	if a.bridge != nil {
		if err := a.bridge.Start(a.hub); err != nil {
			a.cleanup()
			return err
		}
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the bridge and other resources.
func (a *App) cleanup() {
	if a.bridge != nil {
		a.bridge.Close()
		a.log.Info().Msg("NATS bridge closed")
	}
}
