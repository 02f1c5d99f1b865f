// Package history retains finalized performance summaries and serves
// the history queries.
package history

import (
	"fmt"
	"sync"

	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/pkg/metrics"
)

const defaultMaxRecords = 10000

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithMaxRecords bounds how many summaries the store retains; the
// oldest records are evicted first.
func WithMaxRecords(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// Query narrows List results. Zero values match everything.
type Query struct {
	PieceID string
	Status  session.Status
	Limit   int
	Offset  int
}

// Statistics aggregates the retained records.
type Statistics struct {
	TotalPerformances int     `json:"totalPerformances"`
	Succeeded         int     `json:"succeeded"`
	AverageAccuracy   float64 `json:"averageAccuracy"`
	TotalDurationSec  float64 `json:"totalDurationSec"`
}

// Store is an in-memory history of finalized performances. Recording
// is fire-and-forget for the engine: the store never reports failures
// back to it.
type Store struct {
	maxRecords int

	mu      sync.RWMutex
	records map[string]session.Summary
	order   []string // session ids, oldest first
}

// NewStore creates an empty history store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		maxRecords: defaultMaxRecords,
		records:    make(map[string]session.Summary),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a finalized summary. Recording the same session again
// overwrites its record, so retries are harmless.
func (s *Store) Record(sum session.Summary) {
	s.mu.Lock()
	if _, ok := s.records[sum.SessionID]; !ok {
		s.order = append(s.order, sum.SessionID)
	}
	s.records[sum.SessionID] = sum

	for len(s.order) > s.maxRecords {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
	n := len(s.records)
	s.mu.Unlock()

	metrics.UpdateHistoryRecords(n)
}

// List returns matching summaries, newest first.
func (s *Store) List(q Query) []session.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []session.Summary
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		sum := s.records[s.order[i]]
		if q.PieceID != "" && sum.PieceID != q.PieceID {
			continue
		}
		if q.Status != "" && sum.Status != q.Status {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, sum)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Get returns one summary by session id.
func (s *Store) Get(id string) (session.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.records[id]
	if !ok {
		return session.Summary{}, fmt.Errorf("%w: %q", ErrRecordNotFound, id)
	}
	return sum, nil
}

// Delete removes one summary by session id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %q", ErrRecordNotFound, id)
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.UpdateHistoryRecords(len(s.records))
	return nil
}

// Count returns the number of retained records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Statistics aggregates all retained records. Accuracy averages only
// over graded performances.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{TotalPerformances: len(s.records)}
	graded := 0
	var accSum float64
	for _, sum := range s.records {
		if sum.Success {
			stats.Succeeded++
		}
		stats.TotalDurationSec += sum.DurationSec
		if sum.AccuracyScore != nil {
			graded++
			accSum += *sum.AccuracyScore
		}
	}
	if graded > 0 {
		stats.AverageAccuracy = accSum / float64(graded)
	}
	return stats
}
