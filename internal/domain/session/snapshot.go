package session

import (
	"time"

	"github.com/termitech/maestro/internal/domain/score"
)

// Snapshot is a consistent read of a session's externally visible
// state, taken under the session mutex.
type Snapshot struct {
	ID            string      `json:"sessionId"`
	PieceID       string      `json:"pieceId"`
	PieceName     string      `json:"pieceName"`
	Tempo         int         `json:"tempo"`
	Hands         score.Hands `json:"hands"`
	Status        Status      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	EndedAt       *time.Time  `json:"endedAt,omitempty"`
	TotalNotes    int         `json:"totalNotes"`
	ErrorNotes    int         `json:"errorNotes"`
	Success       *bool       `json:"success,omitempty"`
	AccuracyScore *float64    `json:"accuracyScore,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	LastSeq       uint64      `json:"lastSeq"`
}

// Summary is the finalized record handed to the history collaborator
// when a session reaches a terminal status.
type Summary struct {
	SessionID     string      `json:"sessionId"`
	PieceID       string      `json:"pieceId"`
	PieceName     string      `json:"pieceName"`
	StartedAt     time.Time   `json:"startedAt"`
	EndedAt       time.Time   `json:"endedAt"`
	DurationSec   float64     `json:"durationSec"`
	Tempo         int         `json:"tempo"`
	Hands         score.Hands `json:"hands"`
	Status        Status      `json:"status"`
	Success       bool        `json:"success"`
	AccuracyScore *float64    `json:"accuracyScore,omitempty"`
	ErrorNotes    int         `json:"errorNotes"`
	TotalNotes    int         `json:"totalNotes"`
}

// Snapshot returns the session's current externally visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		PieceID:       s.piece.ID,
		PieceName:     s.piece.Name,
		Tempo:         s.tempo,
		Hands:         s.hands,
		Status:        s.status,
		CreatedAt:     s.createdAt,
		TotalNotes:    s.totalNotes,
		ErrorNotes:    s.errorNotes,
		Success:       s.success,
		AccuracyScore: s.accuracy,
		Notes:         s.notes,
		LastSeq:       s.log.LastSeq(),
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

// Summary builds the history record for a terminal session. The
// second return is false while the session is still live.
func (s *Session) Summary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.Terminal() {
		return Summary{}, false
	}

	started := s.startedAt
	if started.IsZero() {
		started = s.createdAt
	}
	sum := Summary{
		SessionID:     s.id,
		PieceID:       s.piece.ID,
		PieceName:     s.piece.Name,
		StartedAt:     started,
		EndedAt:       s.endedAt,
		DurationSec:   s.endedAt.Sub(started).Seconds(),
		Tempo:         s.tempo,
		Hands:         s.hands,
		Status:        s.status,
		AccuracyScore: s.accuracy,
		ErrorNotes:    s.errorNotes,
		TotalNotes:    s.totalNotes,
	}
	if s.success != nil {
		sum.Success = *s.success
	}
	return sum, true
}
