package history

import "errors"

// Sentinel kinds for history errors.
var (
	ErrRecordNotFound = errors.New("history record not found")
)
