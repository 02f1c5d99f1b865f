package score

import "errors"

// Sentinel kinds for piece and schedule errors.
var (
	ErrPieceNotFound = errors.New("piece not found")
	ErrInvalidNote   = errors.New("invalid note entry")
	ErrInvalidHands  = errors.New("invalid hands selector")
)
