package door

import "errors"

var (
	// ErrNetwork is returned when the remote door could not be reached or
	// answered with a non-success status.
	ErrNetwork = errors.New("door network error")

	// ErrUnrecognizedStatus marks a status body that is neither "open" nor "close".
	ErrUnrecognizedStatus = errors.New("unrecognized door status")

	// ErrInvalidCommand marks a target value outside {Open, Closed}.
	ErrInvalidCommand = errors.New("invalid target command")
)
