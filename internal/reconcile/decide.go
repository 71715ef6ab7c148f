package reconcile

import (
	"time"

	"github.com/dokzlo13/garaged/internal/door"
)

// ShouldToggle decides whether a target command must trigger the door.
//
// The toggle input is an edge trigger, so a command is skipped only when the
// door already rests in the requested position: closed, or open for longer
// than ReverseWindow. An Open command shortly after the door opened toggles
// again, which reverses a door that is still moving.
func ShouldToggle(target, last door.State, known bool, elapsed time.Duration) bool {
	if !known || target != last {
		return true
	}
	switch target {
	case door.Closed:
		return false
	case door.Open:
		return elapsed <= ReverseWindow
	default:
		return true
	}
}

// needsCorrection reports whether an acknowledged command falls inside the
// reverse window and must be followed by an alternating target push.
func needsCorrection(target, last door.State, known bool, elapsed time.Duration) bool {
	return known && last == door.Open && target == door.Open && elapsed <= ReverseWindow
}

// correctionValue returns the target value pushed for the given parity:
// Closed on even, Open on odd.
func correctionValue(parity int) door.State {
	if parity%2 == 0 {
		return door.Closed
	}
	return door.Open
}
