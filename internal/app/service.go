// Package service provides the core engine service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/termitech/maestro/internal/adapters/history"
	"github.com/termitech/maestro/internal/adapters/registry"
	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/grading"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/internal/engine/broadcast"
	"github.com/termitech/maestro/internal/engine/control"
	"github.com/termitech/maestro/pkg/logger"
)

// Service wires the performance engine together: piece library,
// session registry, control dispatcher, per-session broadcasters and
// the history store.
type Service struct {
	mu sync.RWMutex

	// Core components
	library    *score.InMemoryLibrary
	registry   *registry.Registry
	dispatcher *control.Dispatcher
	streams    *broadcast.Manager
	history    *history.Store

	// Configuration
	minTempo          int
	maxTempo          int
	defaultTempo      int
	eventRetention    int
	sessionRetention  time.Duration
	heartbeatInterval time.Duration
	subscriberBuffer  int
	lagTolerance      time.Duration
	scoreDir          string
	historyLimit      int
	grader            grading.Policy

	// State
	started       bool
	startedAt     time.Time
	cancelJanitor context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// WithTempoBounds sets the accepted tempo range and default.
func WithTempoBounds(minTempo, maxTempo, def int) Option {
	return func(s *Service) {
		if minTempo > 0 && maxTempo >= minTempo {
			s.minTempo = minTempo
			s.maxTempo = maxTempo
			s.defaultTempo = def
		}
	}
}

// WithEventRetention sets how many events each session log retains.
func WithEventRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.eventRetention = n
		}
	}
}

// WithSessionRetention sets how long terminal sessions stay visible.
func WithSessionRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionRetention = d
		}
	}
}

// WithHeartbeatInterval sets the subscriber ping interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber outbound buffer size.
func WithSubscriberBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.subscriberBuffer = n
		}
	}
}

// WithLagTolerance sets how late a note may run before it counts as
// an error note.
func WithLagTolerance(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lagTolerance = d
		}
	}
}

// WithScoreDir loads extra pieces from a directory of MIDI files at
// startup.
func WithScoreDir(dir string) Option {
	return func(s *Service) {
		s.scoreDir = dir
	}
}

// WithHistoryLimit bounds the history store.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithGrader replaces the success policy.
func WithGrader(p grading.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.grader = p
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		minTempo:          20,
		maxTempo:          240,
		defaultTempo:      120,
		eventRetention:    4096,
		sessionRetention:  30 * time.Minute,
		heartbeatInterval: 15 * time.Second,
		subscriberBuffer:  100,
		lagTolerance:      150 * time.Millisecond,
		historyLimit:      10000,
		grader:            grading.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting performance engine...")

	s.library = score.NewInMemoryLibrary()
	if s.scoreDir != "" {
		loaded, errs := s.library.LoadDir(s.scoreDir)
		for _, err := range errs {
			s.logger.Warn(ctx, "skipping score file", logger.Error(err))
		}
		s.logger.Info(ctx, "loaded score directory",
			logger.String("dir", s.scoreDir),
			logger.Int("pieces", loaded),
		)
	}

	s.history = history.NewStore(history.WithMaxRecords(s.historyLimit))
	s.dispatcher = control.New(s.history, s.logger,
		control.WithLagTolerance(s.lagTolerance),
		control.WithGrader(s.grader),
	)
	s.registry = registry.New(s.library, s.dispatcher, s.logger,
		registry.WithTempoBounds(s.minTempo, s.maxTempo, s.defaultTempo),
		registry.WithEventRetention(s.eventRetention),
		registry.WithSessionRetention(s.sessionRetention),
	)
	s.streams = broadcast.NewManager(s.logger,
		broadcast.WithBuffer(s.subscriberBuffer),
		broadcast.WithHeartbeat(s.heartbeatInterval),
	)

	janitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelJanitor = cancel
	go s.registry.RunJanitor(janitorCtx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "performance engine started",
		logger.Int("pieces", len(s.library.List(ctx))),
		logger.Int("min_tempo", s.minTempo),
		logger.Int("max_tempo", s.maxTempo),
		logger.Duration("heartbeat", s.heartbeatInterval),
	)
	return nil
}

// Stop gracefully shuts down the service: every live session is
// halted, their drivers cancelled, and subscriber streams drained.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping performance engine...")

	if s.cancelJanitor != nil {
		s.cancelJanitor()
	}

	for _, snap := range s.registry.List(registry.Filter{}) {
		if sess, err := s.registry.Get(snap.ID); err == nil {
			s.dispatcher.Halt(sess, "service shutting down")
		}
	}
	s.dispatcher.Wait()

	s.started = false
	s.logger.Info(context.Background(), "performance engine stopped")
}

// CreateSession registers a new session in preparing state.
func (s *Service) CreateSession(ctx context.Context, spec registry.CreateSpec) (session.Snapshot, error) {
	sess, err := s.registry.Create(ctx, spec)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// GetSession returns a snapshot of the session with the given id.
func (s *Service) GetSession(id string) (session.Snapshot, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// ListSessions returns snapshots of matching sessions, newest first.
func (s *Service) ListSessions(f registry.Filter) []session.Snapshot {
	return s.registry.List(f)
}

// DeleteSession cancels any in-flight playback and removes the
// session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}
	s.streams.Drop(id)
	return nil
}

// ApplyCommand validates and applies a control command to a session.
func (s *Service) ApplyCommand(ctx context.Context, id, command string) (session.Snapshot, error) {
	cmd, err := control.ParseCommand(command)
	if err != nil {
		return session.Snapshot{}, err
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := s.dispatcher.Apply(ctx, sess, cmd); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}

// Events returns up to limit retained events with Seq > sinceSeq.
func (s *Service) Events(id string, sinceSeq uint64, limit int) ([]event.Event, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Log().Range(sinceSeq, limit), nil
}

// Subscribe attaches a live-only subscriber to a session's stream.
func (s *Service) Subscribe(ctx context.Context, id string) (*broadcast.Subscriber, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return s.streams.For(sess.Log()).Subscribe(ctx), nil
}

// SubscribeFrom attaches a subscriber with replay from the cursor.
func (s *Service) SubscribeFrom(ctx context.Context, id string, cursor uint64) (*broadcast.Subscriber, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return s.streams.For(sess.Log()).SubscribeFrom(ctx, cursor), nil
}

// ListPieces returns all known pieces.
func (s *Service) ListPieces(ctx context.Context) []*score.Piece {
	return s.library.List(ctx)
}

// GetPiece returns one piece by id.
func (s *Service) GetPiece(ctx context.Context, id string) (*score.Piece, error) {
	return s.library.Get(ctx, id)
}

// History exposes the history store for the history endpoints.
func (s *Service) History() *history.Store {
	return s.history
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	startedAt := s.startedAt
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": started,
	}
	if !started {
		return stats
	}

	histStats := s.history.Statistics()
	stats["uptime_seconds"] = time.Since(startedAt).Seconds()
	stats["sessions"] = s.registry.Count()
	stats["subscribers"] = s.streams.SubscriberCount()
	stats["pieces"] = len(s.library.List(context.Background()))
	stats["history"] = histStats
	return stats
}
