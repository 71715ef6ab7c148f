// Package homekit exposes the door as a HomeKit garage door opener.
package homekit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/config"
	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/reconcile"
)

// Controller is the reconciler side the accessory forwards requests to.
type Controller interface {
	CurrentState() (door.State, bool)
	SetTargetState(ctx context.Context, target door.State, done func(error))
}

// Accessory is a HomeKit garage door opener backed by a Controller.
// It implements reconcile.Host.
type Accessory struct {
	cfg    config.HomeKitConfig
	acc    *accessory.Accessory
	opener *service.GarageDoorOpener

	// current is the last value pushed to CurrentDoorState. The get handler
	// must not read the characteristic, which would call the handler again.
	current atomic.Int64

	mu         sync.RWMutex
	controller Controller
	ctx        context.Context
}

var _ reconcile.Host = (*Accessory)(nil)

// New creates the accessory and its garage door opener service.
func New(cfg config.HomeKitConfig) *Accessory {
	info := accessory.Info{
		Name:         cfg.Name,
		Manufacturer: cfg.Manufacturer,
		Model:        cfg.Model,
		SerialNumber: cfg.SerialNumber,
	}

	acc := accessory.New(info, accessory.TypeGarageDoorOpener)
	opener := service.NewGarageDoorOpener()
	opener.CurrentDoorState.SetValue(characteristic.CurrentDoorStateClosed)
	opener.TargetDoorState.SetValue(characteristic.TargetDoorStateClosed)
	opener.ObstructionDetected.SetValue(false)
	acc.AddService(opener.Service)

	a := &Accessory{
		cfg:    cfg,
		acc:    acc,
		opener: opener,
		ctx:    context.Background(),
	}

	a.current.Store(int64(characteristic.CurrentDoorStateClosed))

	opener.CurrentDoorState.OnValueRemoteGet(a.handleGetCurrent)
	opener.TargetDoorState.OnValueRemoteUpdate(a.handleSetTarget)

	return a
}

// Bind attaches the controller. ctx is passed to every forwarded command.
func (a *Accessory) Bind(ctx context.Context, c Controller) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.controller = c
	a.ctx = ctx
}

// UpdateCharacteristic pushes a value to connected HomeKit clients.
func (a *Accessory) UpdateCharacteristic(c reconcile.Characteristic, s door.State) {
	switch c {
	case reconcile.CurrentDoorState:
		v := toCurrent(s)
		a.current.Store(int64(v))
		a.opener.CurrentDoorState.SetValue(v)
	case reconcile.TargetDoorState:
		a.opener.TargetDoorState.SetValue(toTarget(s))
	default:
		log.Warn().Str("characteristic", c.String()).Msg("Ignoring update for unknown characteristic")
	}
}

// Start publishes the accessory over HAP. It returns once the transport is
// running and stops it when ctx is cancelled.
func (a *Accessory) Start(ctx context.Context) error {
	t, err := hc.NewIPTransport(hc.Config{
		Pin:         a.cfg.Pin,
		StoragePath: a.cfg.StoragePath,
		Port:        a.cfg.Port,
	}, a.acc)
	if err != nil {
		return fmt.Errorf("failed to create HomeKit transport: %w", err)
	}

	go t.Start()
	log.Info().Str("name", a.cfg.Name).Str("port", a.cfg.Port).Msg("HomeKit accessory published")

	go func() {
		<-ctx.Done()
		<-t.Stop()
		log.Info().Msg("HomeKit transport stopped")
	}()

	return nil
}

// handleGetCurrent answers HomeKit reads from the cached state. It never
// polls the door. Until the first poll it returns the last pushed value.
func (a *Accessory) handleGetCurrent() int {
	a.mu.RLock()
	c := a.controller
	a.mu.RUnlock()

	if c != nil {
		if s, ok := c.CurrentState(); ok {
			return toCurrent(s)
		}
	}
	return int(a.current.Load())
}

// handleSetTarget forwards a target written by a HomeKit client.
func (a *Accessory) handleSetTarget(v int) {
	a.mu.RLock()
	c, ctx := a.controller, a.ctx
	a.mu.RUnlock()

	if c == nil {
		log.Warn().Int("value", v).Msg("Target door state set before controller was bound")
		return
	}

	target := fromTarget(v)
	log.Debug().Str("target", target.String()).Msg("HomeKit set target door state")
	c.SetTargetState(ctx, target, func(err error) {
		if err != nil {
			log.Error().Err(err).Str("target", target.String()).Msg("HomeKit target command failed")
		}
	})
}

func toCurrent(s door.State) int {
	switch s {
	case door.Open:
		return characteristic.CurrentDoorStateOpen
	case door.Opening:
		return characteristic.CurrentDoorStateOpening
	case door.Closing:
		return characteristic.CurrentDoorStateClosing
	default:
		return characteristic.CurrentDoorStateClosed
	}
}

func toTarget(s door.State) int {
	if s == door.Open || s == door.Opening {
		return characteristic.TargetDoorStateOpen
	}
	return characteristic.TargetDoorStateClosed
}

func fromTarget(v int) door.State {
	switch v {
	case characteristic.TargetDoorStateOpen:
		return door.Open
	case characteristic.TargetDoorStateClosed:
		return door.Closed
	default:
		// Out of range values are rejected by the reconciler.
		return door.State(v)
	}
}
