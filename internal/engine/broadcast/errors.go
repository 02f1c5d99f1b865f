package broadcast

import "errors"

// Sentinel kinds for subscriber errors.
var (
	ErrSubscriberOverrun = errors.New("subscriber overrun")
)
