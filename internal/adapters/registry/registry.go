// Package registry holds live performance sessions and their
// lifecycle from creation to eviction.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/internal/engine/control"
	"github.com/termitech/maestro/pkg/logger"
	"github.com/termitech/maestro/pkg/metrics"
)

// Defaults applied when no options are given.
const (
	defaultMinTempo         = 20
	defaultMaxTempo         = 240
	defaultTempo            = 120
	defaultEventRetention   = 4096
	defaultSessionRetention = 30 * time.Minute
	defaultSweepInterval    = time.Minute
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithTempoBounds sets the accepted tempo range and the default used
// when a creation request omits tempo.
func WithTempoBounds(minTempo, maxTempo, def int) Option {
	return func(r *Registry) {
		if minTempo > 0 && maxTempo >= minTempo && def >= minTempo && def <= maxTempo {
			r.minTempo = minTempo
			r.maxTempo = maxTempo
			r.defaultTempo = def
		}
	}
}

// WithEventRetention sets how many events each session log retains.
func WithEventRetention(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.eventRetention = n
		}
	}
}

// WithSessionRetention sets how long terminal sessions stay visible
// before the janitor evicts them.
func WithSessionRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sessionRetention = d
		}
	}
}

// WithSweepInterval sets how often the janitor runs.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// CreateSpec is a session creation request.
type CreateSpec struct {
	PieceID string `json:"pieceId"`
	Tempo   int    `json:"tempo,omitempty"`
	Hands   string `json:"hands,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status  session.Status
	PieceID string
}

// Registry is the concurrency-safe owner of live sessions. Deleting
// a session cancels its driver before removal, so a delete racing an
// in-flight playback is safe.
type Registry struct {
	library    score.Library
	dispatcher *control.Dispatcher
	lg         logger.Logger

	minTempo         int
	maxTempo         int
	defaultTempo     int
	eventRetention   int
	sessionRetention time.Duration
	sweepInterval    time.Duration

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates a registry over the given piece library and dispatcher.
func New(library score.Library, dispatcher *control.Dispatcher, lg logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		library:          library,
		dispatcher:       dispatcher,
		lg:               lg.Named("registry"),
		minTempo:         defaultMinTempo,
		maxTempo:         defaultMaxTempo,
		defaultTempo:     defaultTempo,
		eventRetention:   defaultEventRetention,
		sessionRetention: defaultSessionRetention,
		sweepInterval:    defaultSweepInterval,
		sessions:         make(map[string]*session.Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newSessionID allocates a fresh unique session id.
func newSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Create validates the spec, resolves the piece and registers a new
// session in preparing state.
func (r *Registry) Create(ctx context.Context, spec CreateSpec) (*session.Session, error) {
	tempo := spec.Tempo
	if tempo == 0 {
		tempo = r.defaultTempo
	}
	if tempo < r.minTempo || tempo > r.maxTempo {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidTempo, tempo, r.minTempo, r.maxTempo)
	}

	hands, err := score.ParseHands(spec.Hands)
	if err != nil {
		return nil, err
	}

	piece, err := r.library.Get(ctx, spec.PieceID)
	if err != nil {
		return nil, err
	}

	sess := session.New(newSessionID(), piece, tempo, hands, r.eventRetention)

	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.RecordSessionCreated()
	metrics.UpdateSessionsActive(n)
	r.lg.Info(ctx, "session created",
		logger.String("session_id", sess.ID()),
		logger.String("piece_id", piece.ID),
		logger.Int("tempo", tempo),
		logger.String("hands", string(hands)),
	)
	return sess, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns snapshots of matching sessions, newest first.
func (r *Registry) List(f Filter) []session.Snapshot {
	r.mu.RLock()
	out := make([]session.Snapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snap := sess.Snapshot()
		if f.Status != "" && snap.Status != f.Status {
			continue
		}
		if f.PieceID != "" && snap.PieceID != f.PieceID {
			continue
		}
		out = append(out, snap)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Delete cancels the session's driver, closes its stream and removes
// it from the registry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	r.dispatcher.Halt(sess, "session deleted")
	metrics.UpdateSessionsActive(n)
	r.lg.Info(ctx, "session deleted", logger.String("session_id", id))
	return nil
}

// RunJanitor evicts terminal sessions past the retention window until
// ctx is done. Intended to run as a background goroutine.
func (r *Registry) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(time.Now())
		}
	}
}

// Sweep evicts every terminal session whose end time is older than
// the retention window. Returns how many sessions were evicted.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.sessionRetention)

	r.mu.Lock()
	var evicted []string
	for id, sess := range r.sessions {
		snap := sess.Snapshot()
		if !snap.Status.Terminal() || snap.EndedAt == nil {
			continue
		}
		if snap.EndedAt.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if len(evicted) > 0 {
		metrics.UpdateSessionsActive(n)
		r.lg.Info(context.Background(), "evicted terminal sessions",
			logger.Int("count", len(evicted)),
		)
	}
	return len(evicted)
}
