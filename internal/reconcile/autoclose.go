package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/eventbus"
)

// armAutoCloseLocked starts the auto-close timer. The caller must hold mu and
// must have cancelled any previous timer.
//
// The timer is not tied to the Run context: an armed timer outlives a stopped
// polling loop until the process exits.
func (r *Reconciler) armAutoCloseLocked() {
	r.autoCloseGen++
	gen := r.autoCloseGen

	r.autoCloseAt = r.timeNow().Add(r.autoClose)
	r.autoCloseTimer = r.afterFunc(r.autoClose, func() {
		r.fireAutoClose(gen)
	})

	log.Debug().Time("deadline", r.autoCloseAt).Msg("Auto close timer set")
}

// cancelAutoCloseLocked stops the armed timer, if any. The caller must hold mu.
func (r *Reconciler) cancelAutoCloseLocked() {
	if r.autoCloseTimer == nil {
		return
	}
	r.autoCloseTimer.Stop()
	r.autoCloseTimer = nil
	r.autoCloseAt = time.Time{}
	// A firing that already escaped Stop sees a stale generation.
	r.autoCloseGen++

	log.Debug().Msg("Auto close timer cleared")
}

func (r *Reconciler) fireAutoClose(gen uint64) {
	r.mu.Lock()
	if gen != r.autoCloseGen {
		r.mu.Unlock()
		return
	}
	r.autoCloseTimer = nil
	r.autoCloseAt = time.Time{}
	r.mu.Unlock()

	log.Info().Dur("after", r.autoClose).Msg("Auto close timer ticked, toggling door")
	r.publish(eventbus.EventTypeAutoClose, map[string]any{
		"after": r.autoClose.String(),
	})

	err := r.door.SendToggle(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Auto close toggle failed")
	}
	r.publish(eventbus.EventTypeToggle, map[string]any{
		"source": "auto_close",
		"ok":     err == nil,
	})
}
