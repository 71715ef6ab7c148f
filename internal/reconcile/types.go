// Package reconcile provides the door state reconciler: the polling loop that
// keeps the accessory host in sync with the remote door, the auto-close
// timer, and the target command resolver.
package reconcile

import (
	"context"
	"time"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/eventbus"
)

// Characteristic identifies which host characteristic an update targets.
type Characteristic int

const (
	CurrentDoorState Characteristic = iota
	TargetDoorState
)

func (c Characteristic) String() string {
	switch c {
	case CurrentDoorState:
		return "current_door_state"
	case TargetDoorState:
		return "target_door_state"
	default:
		return "unknown"
	}
}

// Host receives state pushed by the reconciler. Implementations must not
// call back into the reconciler from UpdateCharacteristic.
type Host interface {
	UpdateCharacteristic(c Characteristic, s door.State)
}

// Door is the remote door the reconciler observes and toggles.
type Door interface {
	FetchStatus(ctx context.Context) (string, error)
	SendToggle(ctx context.Context) error
}

// Publisher receives reconciler events. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Config holds the reconciler timings. Zero values take the defaults.
type Config struct {
	RefreshInterval time.Duration
	AutoClose       time.Duration
}

const (
	DefaultRefreshInterval = 1 * time.Second
	DefaultAutoClose       = 600 * time.Second

	// ReverseWindow is how long after a change to Open a repeated Open
	// command still toggles the door (reversing its direction).
	ReverseWindow = 30 * time.Second
)

// Snapshot is a point-in-time copy of the reconciler runtime state.
type Snapshot struct {
	State            door.State
	Known            bool
	ObservedAt       time.Time
	CorrectionParity int
	AutoCloseArmed   bool
	AutoCloseAt      time.Time
}

// timer is the subset of *time.Timer the reconciler relies on.
type timer interface {
	Stop() bool
}
