package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/homekit"
)

// HomeKitService wraps the HomeKit accessory.
type HomeKitService struct {
	cfg       *config.Config
	Accessory *homekit.Accessory
}

// NewHomeKitService creates the accessory. It is created even when HomeKit
// is disabled so the reconciler always has a host to push to.
func NewHomeKitService(cfg *config.Config) *HomeKitService {
	return &HomeKitService{
		cfg:       cfg,
		Accessory: homekit.New(cfg.HomeKit),
	}
}

// Start binds the controller and publishes the accessory if enabled.
func (s *HomeKitService) Start(ctx context.Context, controller homekit.Controller) error {
	s.Accessory.Bind(ctx, controller)

	if !s.cfg.HomeKit.Enabled {
		log.Info().Msg("HomeKit is disabled")
		return nil
	}
	return s.Accessory.Start(ctx)
}
