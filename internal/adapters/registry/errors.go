package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidTempo    = errors.New("invalid tempo")
)
