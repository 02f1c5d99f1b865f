package control

import "errors"

// Sentinel kinds for control errors.
var (
	ErrUnknownCommand = errors.New("unknown control command")
)
