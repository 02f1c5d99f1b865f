// Package session holds the performance session state machine and
// its event log.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/grading"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/engine/clock"
)

// Status is the lifecycle state of a session.
type Status string

// Session lifecycle states. Ended and error are terminal.
const (
	StatusPreparing Status = "preparing"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
	StatusEnded     Status = "ended"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusError
}

// Session is one performance: a state machine plus the ordered event
// log every subscriber reads. All mutation happens under the session
// mutex; each transition and its status event are appended atomically
// so observers never see the log contradict the status.
type Session struct {
	mu sync.Mutex

	id        string
	piece     *score.Piece
	tempo     int
	hands     score.Hands
	status    Status
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	totalNotes int
	errorNotes int
	success    *bool
	accuracy   *float64
	notes      string

	log *event.Log
	clk *clock.Clock
}

// New creates a session in preparing state with an empty event log.
func New(id string, piece *score.Piece, tempo int, hands score.Hands, retention int) *Session {
	return &Session{
		id:        id,
		piece:     piece,
		tempo:     tempo,
		hands:     hands,
		status:    StatusPreparing,
		createdAt: time.Now(),
		log:       event.NewLog(id, retention),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Piece returns the piece being performed.
func (s *Session) Piece() *score.Piece { return s.piece }

// Tempo returns the playback tempo in BPM.
func (s *Session) Tempo() int { return s.tempo }

// Hands returns the hands selector.
func (s *Session) Hands() score.Hands { return s.hands }

// Log returns the session's event log.
func (s *Session) Log() *event.Log { return s.log }

// Clock returns the session's clock, nil until playback starts.
func (s *Session) Clock() *clock.Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Begin transitions preparing -> playing, attaches the clock, and
// appends the playing status event.
func (s *Session) Begin(clk *clock.Clock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPreparing {
		return s.invalid(StatusPlaying)
	}
	s.status = StatusPlaying
	s.startedAt = time.Now()
	s.clk = clk
	return s.appendStatus(event.StatusPayload{Status: string(StatusPlaying)})
}

// Pause transitions playing -> paused, freezing the clock.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPlaying {
		return s.invalid(StatusPaused)
	}
	s.status = StatusPaused
	s.clk.Pause()
	return s.appendStatus(event.StatusPayload{Status: string(StatusPaused)})
}

// Resume transitions paused -> playing, shifting the clock origin so
// the paused stretch is excluded from schedule time.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return s.invalid(StatusPlaying)
	}
	s.status = StatusPlaying
	s.clk.Resume()
	return s.appendStatus(event.StatusPayload{Status: string(StatusPlaying)})
}

// End transitions playing|paused -> ended, cancels the clock, appends
// the terminal status event carrying the final counters and the
// grading result, and closes the event log.
func (s *Session) End(result grading.Result, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPlaying && s.status != StatusPaused {
		return s.invalid(StatusEnded)
	}
	s.status = StatusEnded
	s.endedAt = time.Now()
	if s.clk != nil {
		s.clk.Cancel()
	}

	s.success = &result.Success
	if result.Graded {
		acc := result.Accuracy
		s.accuracy = &acc
	}

	payload := event.StatusPayload{
		Status:        string(StatusEnded),
		Message:       message,
		Success:       s.success,
		AccuracyScore: s.accuracy,
		TotalNotes:    s.totalNotes,
		ErrorNotes:    s.errorNotes,
	}
	err := s.appendStatus(payload)
	s.log.Close()
	return err
}

// Fail transitions any non-terminal state -> error, cancels further
// scheduling, appends the error status event and closes the log.
// The error status is permanent.
func (s *Session) Fail(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return s.invalid(StatusError)
	}
	s.status = StatusError
	s.endedAt = time.Now()
	s.notes = message
	if s.clk != nil {
		s.clk.Cancel()
	}

	failed := false
	payload := event.StatusPayload{
		Status:     string(StatusError),
		Message:    message,
		Success:    &failed,
		TotalNotes: s.totalNotes,
		ErrorNotes: s.errorNotes,
	}
	err := s.appendStatus(payload)
	s.log.Close()
	return err
}

// Abandon tears a non-terminal session down without a terminal
// status event, for explicit deletion. The log closes so attached
// subscribers drain and disconnect. No-op on terminal sessions.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	if s.clk != nil {
		s.clk.Cancel()
	}
	s.log.Close()
}

// invalid must be called with s.mu held.
func (s *Session) invalid(to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, to)
}

// appendStatus must be called with s.mu held.
func (s *Session) appendStatus(p event.StatusPayload) error {
	if _, err := s.log.Append(event.TypeStatus, p); err != nil {
		return fmt.Errorf("append status event: %w", err)
	}
	return nil
}

// RecordNote counts one delivered note; late marks a deadline miss
// beyond the driver's lag tolerance.
func (s *Session) RecordNote(late bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalNotes++
	if late {
		s.errorNotes++
	}
}

// Counters returns the running note counters.
func (s *Session) Counters() (total, errors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalNotes, s.errorNotes
}
