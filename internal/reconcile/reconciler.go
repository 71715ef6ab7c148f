package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/eventbus"
)

// Reconciler keeps the accessory host in sync with the remote door.
//
// All runtime fields are guarded by mu. Network calls are made without
// holding the lock, so a command may be handled between the fetch and the
// update of a poll cycle; every mutation and the host pushes that belong to
// it happen inside one critical section.
type Reconciler struct {
	door   Door
	host   Host
	events Publisher

	refreshInterval time.Duration
	autoClose       time.Duration

	timeNow   func() time.Time
	afterFunc func(d time.Duration, f func()) timer

	mu         sync.Mutex
	state      door.State
	known      bool
	observedAt time.Time
	parity     int

	autoCloseTimer timer
	autoCloseAt    time.Time
	autoCloseGen   uint64
}

// New creates a new Reconciler. events may be nil.
func New(d Door, host Host, events Publisher, cfg Config) *Reconciler {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.AutoClose <= 0 {
		cfg.AutoClose = DefaultAutoClose
	}

	return &Reconciler{
		door:            d,
		host:            host,
		events:          events,
		refreshInterval: cfg.RefreshInterval,
		autoClose:       cfg.AutoClose,
		timeNow:         time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Run polls the door until ctx is cancelled. The first cycle runs
// immediately; each following cycle is scheduled RefreshInterval after the
// previous one finished, whether it succeeded or not.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().
		Dur("refresh_interval", r.refreshInterval).
		Dur("auto_close", r.autoClose).
		Msg("Reconciler started")

	next := time.NewTimer(0)
	defer next.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopping")
			return nil

		case <-next.C:
			r.PollOnce(ctx)
			next.Reset(r.refreshInterval)
		}
	}
}

// PollOnce runs a single poll cycle. Failures are logged and absorbed.
func (r *Reconciler) PollOnce(ctx context.Context) {
	raw, err := r.door.FetchStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Failed to fetch door status")
		return
	}

	state, err := door.FromStatus(raw)
	if err != nil {
		log.Error().Err(err).Str("state", state.String()).Msg("Got unrecognized door status")
	}
	log.Debug().Str("state", state.String()).Str("raw", raw).Msg("Got door status")

	r.observe(state, raw)
}

// observe applies a mapped poll result. Repeated states are ignored.
func (r *Reconciler) observe(state door.State, raw string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.known && r.state == state {
		return
	}

	from := "unknown"
	if r.known {
		from = r.state.String()
	}

	r.host.UpdateCharacteristic(CurrentDoorState, state)
	r.host.UpdateCharacteristic(TargetDoorState, state)

	r.state = state
	r.known = true
	r.observedAt = r.timeNow()
	r.parity = 0

	r.cancelAutoCloseLocked()
	if state == door.Open {
		r.armAutoCloseLocked()
	}

	log.Info().Str("from", from).Str("to", state.String()).Msg("Door state changed")
	r.publish(eventbus.EventTypeStateChanged, map[string]any{
		"from": from,
		"to":   state.String(),
		"raw":  raw,
	})
}

// CurrentState returns the last observed state without polling.
// ok is false until the first poll succeeded.
func (r *Reconciler) CurrentState() (state door.State, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.known
}

// Snapshot returns a copy of the runtime state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		State:            r.state,
		Known:            r.known,
		ObservedAt:       r.observedAt,
		CorrectionParity: r.parity,
		AutoCloseArmed:   r.autoCloseTimer != nil,
		AutoCloseAt:      r.autoCloseAt,
	}
}

func (r *Reconciler) publish(eventType eventbus.EventType, data map[string]any) {
	if r.events == nil {
		return
	}
	r.events.Publish(eventbus.NewEvent(eventType, data))
}
