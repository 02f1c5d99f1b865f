// Package broadcast fans a session's event log out to independent
// subscribers, each with its own cursor, buffer and pump goroutine.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/pkg/logger"
	"github.com/termitech/maestro/pkg/metrics"
)

// Defaults applied when no options are given.
const (
	defaultBuffer    = 100
	defaultHeartbeat = 15 * time.Second
)

// Option applies a configuration option to the Broadcaster.
type Option func(*Broadcaster)

// WithBuffer sets the per-subscriber outbound buffer capacity.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithHeartbeat sets the ping interval for idle connections.
func WithHeartbeat(interval time.Duration) Option {
	return func(b *Broadcaster) {
		if interval > 0 {
			b.heartbeat = interval
		}
	}
}

// Broadcaster reads one session's event log on behalf of any number
// of subscribers. The producer side never blocks: each subscriber has
// its own pump goroutine tracking its own cursor, and a subscriber
// whose cursor falls out of the log's retention window is dropped
// with ErrSubscriberOverrun rather than slowing anyone else down.
type Broadcaster struct {
	log       *event.Log
	buffer    int
	heartbeat time.Duration
	lg        logger.Logger

	mu   sync.Mutex
	subs map[string]*Subscriber
	wg   sync.WaitGroup
}

// New creates a broadcaster over the given event log.
func New(log *event.Log, lg logger.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		log:       log,
		buffer:    defaultBuffer,
		heartbeat: defaultHeartbeat,
		lg:        lg.Named("broadcast"),
		subs:      make(map[string]*Subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscriber is one attached reader. Events arrive on Events() until
// the channel is closed; Err() then reports why the stream ended
// (nil for a normal end of stream).
type Subscriber struct {
	id     string
	ch     chan event.Event
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	cursor uint64
}

// ID returns the subscriber's unique id.
func (s *Subscriber) ID() string { return s.id }

// Events returns the subscriber's event channel.
func (s *Subscriber) Events() <-chan event.Event { return s.ch }

// Err reports why the stream ended. Valid after Events() is closed.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the subscriber. Safe to call at any time and more
// than once; pending events are discarded.
func (s *Subscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscriber) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Subscribe attaches a live-only subscriber starting at the current
// tail of the log.
func (b *Broadcaster) Subscribe(ctx context.Context) *Subscriber {
	return b.attach(ctx, b.log.LastSeq(), false)
}

// SubscribeFrom attaches a subscriber that first replays every
// retained event with sequence greater than cursor, then goes live.
// Replay is bounded by the log's retention window.
func (b *Broadcaster) SubscribeFrom(ctx context.Context, cursor uint64) *Subscriber {
	return b.attach(ctx, cursor, true)
}

func (b *Broadcaster) attach(ctx context.Context, cursor uint64, replay bool) *Subscriber {
	sub := &Subscriber{
		id:     uuid.NewString(),
		ch:     make(chan event.Event, b.buffer),
		done:   make(chan struct{}),
		cursor: cursor,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	metrics.RecordSubscriberAttached()

	b.wg.Add(1)
	go b.pump(ctx, sub, replay)
	return sub
}

// pump is the per-subscriber delivery loop. It reads the shared log
// from the subscriber's cursor, forwards events into the bounded
// channel, and synthesizes heartbeat pings while idle.
func (b *Broadcaster) pump(ctx context.Context, sub *Subscriber, replay bool) {
	defer b.wg.Done()
	defer b.detach(sub)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	first := true
	for {
		events, oldest, wake := b.log.Since(sub.cursor)

		// A gap after attach means the log evicted events the
		// subscriber had not consumed yet: it fell out of the
		// retention window.
		if len(events) > 0 && events[0].Seq > sub.cursor+1 && !first {
			sub.fail(ErrSubscriberOverrun)
			metrics.RecordSubscriberDropped()
			b.lg.Warn(ctx, "subscriber dropped on overrun",
				logger.String("subscriber_id", sub.id),
				logger.Uint64("cursor", sub.cursor),
				logger.Uint64("oldest_retained", oldest),
			)
			return
		}

		if first && replay && len(events) > 0 {
			metrics.RecordReplayedEvents(len(events))
		}
		first = false

		for _, e := range events {
			select {
			case sub.ch <- e:
				sub.cursor = e.Seq
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}

		if b.log.Closed() {
			// Terminal event already forwarded above; end of stream.
			return
		}

		select {
		case <-wake:
		case <-ticker.C:
			b.ping(sub)
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		}
	}
}

// ping sends a heartbeat carrying the subscriber's last delivered
// sequence. Pings never occupy a log sequence slot; a full buffer
// skips the ping rather than blocking.
func (b *Broadcaster) ping(sub *Subscriber) {
	e := event.Event{
		Seq:       sub.cursor,
		SessionID: b.log.SessionID(),
		Type:      event.TypePing,
		Timestamp: time.Now(),
	}
	select {
	case sub.ch <- e:
		metrics.RecordHeartbeatSent()
	default:
	}
}

func (b *Broadcaster) detach(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	metrics.RecordSubscriberDetached()
	close(sub.ch)
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Wait blocks until every pump goroutine has exited. Intended for
// teardown after the log is closed.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
