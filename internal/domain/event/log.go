package event

import (
	"sync"
	"time"

	"github.com/termitech/maestro/pkg/metrics"
)

// Log is a session's append-only event log. It retains a bounded
// window of recent events for replay and backfill; older events are
// evicted oldest-first. Safe for one appender and many readers.
type Log struct {
	mu        sync.RWMutex
	sessionID string
	retention int
	entries   []Event
	nextSeq   uint64
	closed    bool
	wake      chan struct{}
}

// NewLog creates an empty log retaining at most retention events.
func NewLog(sessionID string, retention int) *Log {
	if retention <= 0 {
		retention = 1
	}
	return &Log{
		sessionID: sessionID,
		retention: retention,
		nextSeq:   1,
		wake:      make(chan struct{}),
	}
}

// Append assigns the next sequence number and appends a new event.
// Returns ErrLogClosed once the log has been closed by a terminal
// transition.
func (l *Log) Append(t Type, payload any) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Event{}, ErrLogClosed
	}

	e := Event{
		Seq:       l.nextSeq,
		SessionID: l.sessionID,
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	l.nextSeq++
	l.entries = append(l.entries, e)
	if len(l.entries) > l.retention {
		l.entries = l.entries[len(l.entries)-l.retention:]
	}
	l.wakeWaiters()

	metrics.RecordEventAppended(string(t))
	return e, nil
}

// Since returns all retained events with Seq > cursor, the sequence of
// the oldest retained event (0 when the log is empty), and a channel
// that is closed on the next append or on Close. A reader that sees an
// oldest retained sequence greater than cursor+1 has fallen out of the
// retention window.
func (l *Log) Since(cursor uint64) ([]Event, uint64, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var oldest uint64
	if len(l.entries) > 0 {
		oldest = l.entries[0].Seq
	}

	var out []Event
	for i := range l.entries {
		if l.entries[i].Seq > cursor {
			out = append(out, l.entries[i:]...)
			break
		}
	}
	return out, oldest, l.wake
}

// Range returns up to limit retained events with Seq > sinceSeq, for
// offline backfill queries.
func (l *Log) Range(sinceSeq uint64, limit int) []Event {
	events, _, _ := l.Since(sinceSeq)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

// SessionID returns the owning session's id.
func (l *Log) SessionID() string {
	return l.sessionID
}

// LastSeq returns the sequence of the most recently appended event, or
// 0 if nothing has been appended yet.
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq - 1
}

// Close marks the log complete and wakes all waiting readers. Appends
// after Close fail; Close is idempotent.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.wakeWaiters()
}

// Closed reports whether the log has been closed.
func (l *Log) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// wakeWaiters must be called with l.mu held.
func (l *Log) wakeWaiters() {
	close(l.wake)
	l.wake = make(chan struct{})
}
