package driver

import "errors"

// Sentinel kinds for playback errors.
var (
	ErrScheduleFault = errors.New("schedule fault")
)
