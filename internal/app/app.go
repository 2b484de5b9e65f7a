// Package app wires the services together and manages their lifecycle.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/config"
)

// App owns the service container for one daemon run.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New builds every service without starting any of them.
func New(cfg *config.Config, opts Options) (*App, error) {
	services, err := NewServices(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Start discovers devices and starts the background services. Services
// stop when ctx is cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		a.cancel()
		return err
	}

	log.Info().
		Int("devices", len(a.services.ZWave.Manager.All())).
		Bool("api", a.cfg.API.Enabled).
		Bool("mqtt", a.cfg.MQTT.Enabled).
		Bool("script", a.services.Lua != nil).
		Msg("wxstatusd started")
	return nil
}

// Run starts the app, blocks until ctx is cancelled and shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		a.Stop() //nolint:errcheck
		return err
	}
	<-a.ctx.Done()
	return a.Stop()
}

// Stop cancels background work and releases every resource.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services == nil {
		return nil
	}
	return a.services.Stop()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		log.Warn().Msg("Received shutdown signal")
	}()
	return ctx
}
