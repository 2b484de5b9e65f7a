// Package api serves the HTTP command surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/ledger"
	"github.com/dokzlo13/wxstatusd/internal/settings"
	"github.com/dokzlo13/wxstatusd/internal/status"
)

// Submitter queues LED commands. *command.Dispatcher implements it.
type Submitter interface {
	Submit(cmd command.Command) (command.Command, error)
}

// LedgerReader lists recent ledger entries. *ledger.Ledger implements it.
type LedgerReader interface {
	Recent(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
}

// CacheClearer drops cached parameter writes. *zwave.Gateway implements it.
type CacheClearer interface {
	ClearCache()
}

// ActionRunner queues a named script action.
type ActionRunner func(name string, args map[string]any) error

// Deps are the components behind the routes. Actions may be nil.
type Deps struct {
	Devices  *device.Manager
	Commands Submitter
	Settings *settings.Settings
	Ledger   LedgerReader
	Cache    CacheClearer
	Status   *status.Tracker
	Actions  ActionRunner
}

// Server is the HTTP API server.
type Server struct {
	addr       string
	deps       Deps
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, deps Deps) *Server {
	return &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		deps: deps,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
