// Package mqtt bridges the door to an MQTT broker: it publishes state and
// events and accepts target commands.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/eventbus"
)

// Controller receives target commands from the broker.
type Controller interface {
	SetTargetState(ctx context.Context, target door.State, done func(error))
}

// publishFunc sends one message. Replaced in tests.
type publishFunc func(topic string, qos byte, retained bool, payload []byte) error

// Bridge connects the reconciler to an MQTT broker.
type Bridge struct {
	cfg        config.MQTTConfig
	topics     Topics
	controller Controller

	mu      sync.RWMutex
	ctx     context.Context
	client  paho.Client
	publish publishFunc
}

// New creates a bridge. Call Connect to reach the broker.
func New(cfg config.MQTTConfig, controller Controller) *Bridge {
	return &Bridge{
		cfg:        cfg,
		topics:     Topics{Prefix: cfg.TopicPrefix},
		controller: controller,
		ctx:        context.Background(),
	}
}

// Topics returns the topics the bridge uses.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Connect dials the broker. The command subscription and the "online"
// status are (re)established on every successful connection. ctx is passed
// to forwarded commands.
func (b *Bridge) Connect(ctx context.Context) error {
	opts := buildClientOptions(b.cfg, b.topics)
	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Info().Str("broker", b.cfg.Broker).Msg("MQTT connected")
		b.onConnect(c)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := paho.NewClient(opts)
	b.mu.Lock()
	b.ctx = ctx
	b.client = client
	b.publish = func(topic string, qos byte, retained bool, payload []byte) error {
		token := client.Publish(topic, qos, retained, payload)
		if !token.WaitTimeout(publishTimeout) {
			return errors.New("publish timeout")
		}
		return token.Error()
	}
	b.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// Connect retry keeps trying in the background.
		log.Warn().Str("broker", b.cfg.Broker).Msg("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

func (b *Bridge) onConnect(c paho.Client) {
	token := c.Subscribe(b.topics.Command(), 1, func(_ paho.Client, msg paho.Message) {
		b.dispatchCommand(msg.Payload())
	})
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", b.topics.Command()).Msg("MQTT subscribe failed")
	}

	if err := b.send(b.topics.Status(), 1, true, []byte(statusOnline)); err != nil {
		log.Error().Err(err).Msg("Failed to publish MQTT online status")
	}
}

// HandleEvent publishes a bus event. State changes also update the
// retained state topic.
func (b *Bridge) HandleEvent(e eventbus.Event) {
	if state, ok := StateFromEvent(e); ok {
		if err := b.send(b.topics.State(), 1, true, []byte(state)); err != nil {
			log.Error().Err(err).Str("state", state).Msg("Failed to publish MQTT state")
		}
	}

	payload, err := FormatEvent(e)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to format MQTT event")
		return
	}
	if err := b.send(b.topics.Events(), 0, false, payload); err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to publish MQTT event")
	}
}

// dispatchCommand handles a command off the paho router goroutine. A toggle
// has no timeout and must not stall incoming messages.
func (b *Bridge) dispatchCommand(payload []byte) {
	go b.handleCommand(payload)
}

func (b *Bridge) handleCommand(payload []byte) {
	target, err := ParseCommand(payload)
	if err != nil {
		log.Warn().Err(err).Str("payload", string(payload)).Msg("Ignoring MQTT command")
		return
	}

	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()

	log.Debug().Str("target", target.String()).Msg("MQTT set target")
	b.controller.SetTargetState(ctx, target, func(err error) {
		if err != nil {
			log.Error().Err(err).Str("target", target.String()).Msg("MQTT target command failed")
		}
	})
}

func (b *Bridge) send(topic string, qos byte, retained bool, payload []byte) error {
	b.mu.RLock()
	publish := b.publish
	b.mu.RUnlock()

	if publish == nil {
		return errors.New("mqtt bridge not connected")
	}
	return publish(topic, qos, retained, payload)
}

// Close publishes a retained "offline" status and disconnects.
func (b *Bridge) Close() {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		if err := b.send(b.topics.Status(), 1, true, []byte(statusOffline)); err != nil {
			log.Warn().Err(err).Msg("Failed to publish MQTT offline status")
		}
	}
	client.Disconnect(disconnectQuiesce)
	log.Info().Msg("MQTT disconnected")
}
