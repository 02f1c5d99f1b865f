package session

import "errors"

// Sentinel kinds for session lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
)
