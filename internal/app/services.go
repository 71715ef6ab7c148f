package app

import (
	"context"

	"github.com/dokzlo13/garaged/internal/api"
	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/db"
	"github.com/dokzlo13/garaged/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB *db.DB

	// High-level services
	HomeKit *HomeKitService
	Door    *DoorService
	Ledger  *LedgerService
	API     *APIService
	MQTT    *MQTTService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	var l *ledger.Ledger
	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		l = ledger.New(database.DB)
	}
	s.Ledger = NewLedgerService(cfg, l)

	// The accessory is the reconciler's host, so it comes first.
	s.HomeKit = NewHomeKitService(cfg)
	s.Door = NewDoorService(cfg, s.HomeKit.Accessory)

	var history api.History
	if l != nil {
		history = l
	}
	s.API = NewAPIService(cfg, s.Door.Reconciler, history)
	s.MQTT = NewMQTTService(cfg, s.Door.Reconciler)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Event consumers subscribe before the reconciler publishes anything.
	s.Ledger.Start(ctx, s.Door.Bus)
	if err := s.MQTT.Start(ctx, s.Door.Bus); err != nil {
		return err
	}

	if err := s.HomeKit.Start(ctx, s.Door.Reconciler); err != nil {
		return err
	}

	s.Door.StartBackground(ctx)
	s.API.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Door != nil {
		s.Door.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
