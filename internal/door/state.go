// Package door defines the garage door state model shared by the reconciler
// and the accessory hosts.
package door

import (
	"fmt"
	"strings"
)

// State is the position of the door. Numeric values match the HomeKit
// CurrentDoorState characteristic.
type State int

const (
	Open State = iota
	Closed
	Opening
	Closing
)

// Raw status tokens returned by the remote status endpoint.
const (
	RawOpen  = "open"
	RawClose = "close"
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsTarget reports whether s is a valid target state (Open or Closed).
func (s State) IsTarget() bool {
	return s == Open || s == Closed
}

// FromStatus maps a raw status body to a door state.
// Unrecognized bodies map to Closed together with ErrUnrecognizedStatus.
func FromStatus(raw string) (State, error) {
	switch raw {
	case RawOpen:
		return Open, nil
	case RawClose:
		return Closed, nil
	default:
		return Closed, fmt.Errorf("%w: %q", ErrUnrecognizedStatus, raw)
	}
}

// ParseTarget parses a user supplied target value. It accepts the state names
// plus the raw status tokens, case-insensitively ("open", "close", "closed",
// "opening", "closing").
func ParseTarget(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return Open, nil
	case "close", "closed":
		return Closed, nil
	case "opening":
		return Opening, nil
	case "closing":
		return Closing, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
}
