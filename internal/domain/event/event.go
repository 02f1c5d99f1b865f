// Package event contains the playback event model and the per-session
// append-only event log.
package event

import (
	"time"
)

// Type discriminates event payloads on the wire.
type Type string

// Event types pushed to stream subscribers.
const (
	TypeStatus    Type = "status"
	TypeNoteFrame Type = "note_frame"
	TypeHandPose  Type = "hand_pose"
	TypeLog       Type = "log"
	TypePing      Type = "ping"
)

// Event is one record in a session's ordered playback stream. Events
// are immutable once appended; Seq is unique and strictly increasing
// within a session, with no gaps for appended events. Ping events are
// never appended to the log: they are synthesized per subscriber and
// carry that subscriber's last-delivered sequence.
type Event struct {
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"sessionId"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// StatusPayload accompanies a status event on every state transition.
// Terminal transitions carry final counters and the success judgment.
type StatusPayload struct {
	Status        string   `json:"status"`
	Message       string   `json:"message,omitempty"`
	Success       *bool    `json:"success,omitempty"`
	AccuracyScore *float64 `json:"accuracyScore,omitempty"`
	TotalNotes    int      `json:"totalNotes,omitempty"`
	ErrorNotes    int      `json:"errorNotes,omitempty"`
}

// NoteAction distinguishes the two halves of a note frame.
type NoteAction string

// Note frame actions.
const (
	NoteOn  NoteAction = "note_on"
	NoteOff NoteAction = "note_off"
)

// NoteFramePayload is one key press or release.
type NoteFramePayload struct {
	Action   NoteAction `json:"action"`
	Pitch    int        `json:"pitch"`
	Note     string     `json:"note"`
	Velocity int        `json:"velocity,omitempty"`
	Hand     string     `json:"hand"`
	Beat     float64    `json:"beat"`
}

// HandPosePayload reports which keys a hand covers at a schedule point.
type HandPosePayload struct {
	Hand string  `json:"hand"`
	Keys []int   `json:"keys"`
	Beat float64 `json:"beat"`
}

// LogPayload is a free-text progress line.
type LogPayload struct {
	Message string `json:"message"`
}
