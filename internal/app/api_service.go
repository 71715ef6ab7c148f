package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/api"
	"github.com/dokzlo13/garaged/internal/config"
)

// APIService wraps the HTTP API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService. history may be nil.
func NewAPIService(cfg *config.Config, controller api.Controller, history api.History) *APIService {
	server := api.NewServer(
		cfg.API.Host,
		cfg.API.Port,
		controller,
		history,
		cfg.API.RateLimitRPS,
		cfg.API.RateLimitBurst,
	)
	return &APIService{
		cfg:    cfg,
		server: server,
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("API server disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()
}
