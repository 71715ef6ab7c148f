package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/eventbus"
)

// SetTargetState handles a target command forwarded by an accessory host.
//
// done is always called exactly once, right after the toggle attempt: with
// nil on success, skip or an invalid target, and with the toggle error
// otherwise. Failed toggles are not retried. After a successful
// acknowledgment an alternating correction may be pushed to the host's
// target characteristic (see needsCorrection).
func (r *Reconciler) SetTargetState(ctx context.Context, target door.State, done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	if !target.IsTarget() {
		err := fmt.Errorf("%w: %s", door.ErrInvalidCommand, target)
		log.Error().Err(err).Msg("Set target wrong value")
		r.publish(eventbus.EventTypeCommand, map[string]any{
			"target": target.String(),
			"valid":  false,
		})
		done(nil)
		return
	}

	r.mu.Lock()
	last, known := r.state, r.known
	elapsed := r.timeNow().Sub(r.observedAt)
	r.mu.Unlock()

	toggle := ShouldToggle(target, last, known, elapsed)
	r.publish(eventbus.EventTypeCommand, map[string]any{
		"target":  target.String(),
		"valid":   true,
		"toggled": toggle,
	})

	if !toggle {
		log.Debug().
			Str("target", target.String()).
			Dur("elapsed", elapsed).
			Msg("Set target skip, door already in requested state")
	} else {
		err := r.door.SendToggle(ctx)
		r.publish(eventbus.EventTypeToggle, map[string]any{
			"source": "command",
			"target": target.String(),
			"ok":     err == nil,
		})
		if err != nil {
			log.Error().Err(err).Str("target", target.String()).Msg("Failed to toggle door")
			done(err)
			return
		}
		log.Debug().Str("target", target.String()).Msg("Set accessory state")
	}

	done(nil)
	r.correct(target)
}

// correct pushes the alternating target value when an Open command lands
// inside the reverse window. A single forced value would not make the host
// re-render the transitional state on repeated commands, so the pushed value
// alternates between Closed and Open.
func (r *Reconciler) correct(target door.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.timeNow().Sub(r.observedAt)
	if !needsCorrection(target, r.state, r.known, elapsed) {
		return
	}

	value := correctionValue(r.parity)
	r.parity++
	r.host.UpdateCharacteristic(TargetDoorState, value)

	log.Debug().
		Str("value", value.String()).
		Int("parity", r.parity).
		Msg("Pushed target correction")
}
