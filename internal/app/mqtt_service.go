package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/eventbus"
	"github.com/dokzlo13/garaged/internal/mqtt"
)

// MQTTService wraps the MQTT bridge.
type MQTTService struct {
	cfg    *config.Config
	Bridge *mqtt.Bridge
}

// NewMQTTService creates a new MQTTService. Bridge is nil when MQTT is disabled.
func NewMQTTService(cfg *config.Config, controller mqtt.Controller) *MQTTService {
	s := &MQTTService{cfg: cfg}
	if cfg.MQTT.Enabled {
		s.Bridge = mqtt.New(cfg.MQTT, controller)
	}
	return s
}

// Start connects to the broker and forwards every bus event to it.
func (s *MQTTService) Start(ctx context.Context, bus *eventbus.Bus) error {
	if s.Bridge == nil {
		log.Debug().Msg("MQTT bridge disabled")
		return nil
	}

	if err := s.Bridge.Connect(ctx); err != nil {
		return err
	}
	bus.SubscribeAll(s.Bridge.HandleEvent)
	log.Info().Str("broker", s.cfg.MQTT.Broker).Str("prefix", s.cfg.MQTT.TopicPrefix).Msg("MQTT bridge started")
	return nil
}

// Close disconnects from the broker.
func (s *MQTTService) Close() {
	if s.Bridge != nil {
		s.Bridge.Close()
	}
}
