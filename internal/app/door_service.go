package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/eventbus"
	"github.com/dokzlo13/garaged/internal/reconcile"
	"github.com/dokzlo13/garaged/internal/remote"
)

// DoorService wraps the remote door client, the event bus and the reconciler.
type DoorService struct {
	cfg *config.Config

	Client     *remote.Client
	Reconciler *reconcile.Reconciler
	Bus        *eventbus.Bus
}

// NewDoorService creates the door components. host receives characteristic
// pushes from the reconciler.
func NewDoorService(cfg *config.Config, host reconcile.Host) *DoorService {
	client := remote.NewClient(cfg.Door.StatusURL, cfg.Door.ToggleURL, cfg.Door.BearerToken)
	bus := eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	reconciler := reconcile.New(client, host, bus, reconcile.Config{
		RefreshInterval: cfg.Door.RefreshInterval.Duration(),
		AutoClose:       cfg.Door.AutoClose.Duration(),
	})

	return &DoorService{
		cfg:        cfg,
		Client:     client,
		Reconciler: reconciler,
		Bus:        bus,
	}
}

// StartBackground starts the polling loop.
func (s *DoorService) StartBackground(ctx context.Context) {
	log.Info().
		Str("status_url", s.cfg.Door.StatusURL).
		Dur("refresh_interval", s.cfg.Door.RefreshInterval.Duration()).
		Dur("auto_close", s.cfg.Door.AutoClose.Duration()).
		Msg("Starting door reconciler")

	go func() {
		if err := s.Reconciler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Reconciler error")
		}
	}()
}

// Close drains the event bus.
func (s *DoorService) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		s.Bus.Close(ctx)
	}
}
