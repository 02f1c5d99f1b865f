// Package score defines pieces, note schedules and the piece library.
package score

import (
	"fmt"
	"sort"
)

// Playable pitch and velocity bounds (88-key piano, A0..C8).
const (
	MinPitch    = 21
	MaxPitch    = 108
	MinVelocity = 1
	MaxVelocity = 127

	// HandSplitPitch is the boundary used when a schedule carries no
	// hand information: pitches below middle C go to the left hand.
	HandSplitPitch = 60
)

// Hand identifies which hand plays a note.
type Hand string

// Hands.
const (
	HandLeft  Hand = "left"
	HandRight Hand = "right"
)

// Hands selects which hands of a schedule to play.
type Hands string

// Hands selectors.
const (
	HandsBoth  Hands = "both"
	HandsLeft  Hands = "left"
	HandsRight Hands = "right"
)

// ParseHands validates a hands selector, defaulting empty to both.
func ParseHands(s string) (Hands, error) {
	switch Hands(s) {
	case "":
		return HandsBoth, nil
	case HandsBoth, HandsLeft, HandsRight:
		return Hands(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidHands, s)
	}
}

// InferHand assigns a hand to a pitch around the split point.
func InferHand(pitch int) Hand {
	if pitch < HandSplitPitch {
		return HandLeft
	}
	return HandRight
}

// NoteEvent is one scheduled note, positioned in beats from the start
// of the piece. Duration is also in beats; tempo converts both to
// wall-clock time at playback.
type NoteEvent struct {
	Beat     float64 `json:"beat"`
	Duration float64 `json:"duration"`
	Pitch    int     `json:"pitch"`
	Velocity int     `json:"velocity"`
	Hand     Hand    `json:"hand"`
}

// Schedule is a piece's ordered note schedule.
type Schedule []NoteEvent

// Validate checks every entry for playable bounds. The first invalid
// entry fails the whole schedule.
func (s Schedule) Validate() error {
	for i, n := range s {
		switch {
		case n.Beat < 0:
			return fmt.Errorf("%w: note %d: negative beat %v", ErrInvalidNote, i, n.Beat)
		case n.Duration <= 0:
			return fmt.Errorf("%w: note %d: duration %v", ErrInvalidNote, i, n.Duration)
		case n.Pitch < MinPitch || n.Pitch > MaxPitch:
			return fmt.Errorf("%w: note %d: pitch %d out of range", ErrInvalidNote, i, n.Pitch)
		case n.Velocity < MinVelocity || n.Velocity > MaxVelocity:
			return fmt.Errorf("%w: note %d: velocity %d out of range", ErrInvalidNote, i, n.Velocity)
		case n.Hand != HandLeft && n.Hand != HandRight:
			return fmt.Errorf("%w: note %d: hand %q", ErrInvalidNote, i, n.Hand)
		}
	}
	return nil
}

// ForHands returns the subset of the schedule played by the selected
// hands, preserving order.
func (s Schedule) ForHands(sel Hands) Schedule {
	if sel == HandsBoth {
		return s
	}
	out := make(Schedule, 0, len(s))
	for _, n := range s {
		if Hands(n.Hand) == sel {
			out = append(out, n)
		}
	}
	return out
}

// Sorted returns a copy ordered by beat offset, releases after
// presses at the same offset being irrelevant here since offsets
// order note starts only.
func (s Schedule) Sorted() Schedule {
	out := make(Schedule, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Beat < out[j].Beat })
	return out
}

// TotalBeats returns the beat offset at which the last note ends.
func (s Schedule) TotalBeats() float64 {
	var end float64
	for _, n := range s {
		if e := n.Beat + n.Duration; e > end {
			end = e
		}
	}
	return end
}

// Piece is one playable score.
type Piece struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Composer string   `json:"composer,omitempty"`
	Schedule Schedule `json:"schedule"`
}

// TotalNotes returns the number of scheduled notes for the selected
// hands.
func (p *Piece) TotalNotes(sel Hands) int {
	return len(p.Schedule.ForHands(sel))
}
