package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/wxstatusd/internal/api"
	"github.com/dokzlo13/wxstatusd/internal/config"
)

// APIService runs the HTTP command surface.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, deps api.Deps) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Host, cfg.API.Port, deps),
	}
}

// Start runs the server in the background if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		log.Info().Msg("HTTP API disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()
}
