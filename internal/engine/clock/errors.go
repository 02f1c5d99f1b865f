package clock

import "errors"

// Sentinel kinds for clock errors.
var (
	ErrClockCancelled = errors.New("clock cancelled")
)
