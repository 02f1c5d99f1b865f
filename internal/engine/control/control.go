// Package control validates and applies session control commands and
// owns the playback driver lifecycle.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/termitech/maestro/internal/domain/grading"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/internal/engine/clock"
	"github.com/termitech/maestro/internal/engine/driver"
	"github.com/termitech/maestro/pkg/logger"
	"github.com/termitech/maestro/pkg/metrics"
)

const defaultLagTolerance = 150 * time.Millisecond

// Command steers a session.
type Command string

// Control commands.
const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
)

// ParseCommand validates a command string.
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case CommandStart, CommandPause, CommandResume, CommandStop:
		return Command(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// HistorySink receives finalized summaries. Recording is
// fire-and-forget from the engine's perspective.
type HistorySink interface {
	Record(sum session.Summary)
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithLagTolerance sets how late a note may run before counting as an
// error note.
func WithLagTolerance(d time.Duration) Option {
	return func(c *Dispatcher) {
		if d > 0 {
			c.lagTolerance = d
		}
	}
}

// WithGrader replaces the success policy.
func WithGrader(p grading.Policy) Option {
	return func(c *Dispatcher) {
		if p != nil {
			c.grader = p
		}
	}
}

// Dispatcher is the single writer of session status. It applies
// control commands against the transition table and starts, cancels
// and finalizes playback drivers; the driver itself only appends
// playback events and counters.
type Dispatcher struct {
	grader       grading.Policy
	history      HistorySink
	lagTolerance time.Duration
	lg           logger.Logger

	mu      sync.Mutex
	drivers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a dispatcher recording finalized sessions to history.
func New(history HistorySink, lg logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		grader:       grading.DefaultPolicy(),
		history:      history,
		lagTolerance: defaultLagTolerance,
		lg:           lg.Named("control"),
		drivers:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply validates the command against the session's current status
// and performs the transition.
func (d *Dispatcher) Apply(ctx context.Context, sess *session.Session, cmd Command) error {
	var err error
	switch cmd {
	case CommandStart:
		err = d.start(ctx, sess)
	case CommandPause:
		err = sess.Pause()
	case CommandResume:
		err = sess.Resume()
	case CommandStop:
		err = d.stop(sess)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordControlCommand(string(cmd), result)
	return err
}

// start validates the schedule, transitions the session to playing
// and launches the driver goroutine.
func (d *Dispatcher) start(ctx context.Context, sess *session.Session) error {
	drv := driver.New(sess, d.lagTolerance, d.lg)
	if err := drv.Validate(); err != nil {
		if ferr := sess.Fail(err.Error()); ferr == nil {
			d.finalize(sess)
		}
		return err
	}

	if err := sess.Begin(clock.New(sess.Tempo())); err != nil {
		return err
	}

	// The driver outlives the request that started it.
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.drivers[sess.ID()] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		completed, err := drv.Run(dctx)
		d.clearDriver(sess.ID())

		switch {
		case err != nil:
			if ferr := sess.Fail(err.Error()); ferr == nil {
				d.finalize(sess)
			}
		case completed:
			total, errs := sess.Counters()
			result := d.grader.Grade(grading.Outcome{
				Completed:  true,
				TotalNotes: total,
				ErrorNotes: errs,
			})
			if eerr := sess.End(result, "performance complete"); eerr == nil {
				d.finalize(sess)
			}
		default:
			// Cancelled: stop, delete or a concurrent fail already
			// performed the terminal transition.
		}
	}()
	return nil
}

// stop ends the session and cancels its driver. A second stop fails
// with ErrInvalidTransition and emits no duplicate terminal event.
func (d *Dispatcher) stop(sess *session.Session) error {
	total, errs := sess.Counters()
	result := d.grader.Grade(grading.Outcome{
		Completed:  false,
		TotalNotes: total,
		ErrorNotes: errs,
	})
	if err := sess.End(result, "stopped by user"); err != nil {
		return err
	}
	d.cancelDriver(sess.ID())
	d.finalize(sess)
	return nil
}

// Halt tears a session down for deletion or shutdown: the driver is
// cancelled first, then playing or paused sessions end as stopped and
// preparing sessions are abandoned without a terminal event.
func (d *Dispatcher) Halt(sess *session.Session, reason string) {
	switch sess.Status() {
	case session.StatusPlaying, session.StatusPaused:
		total, errs := sess.Counters()
		result := d.grader.Grade(grading.Outcome{
			Completed:  false,
			TotalNotes: total,
			ErrorNotes: errs,
		})
		if err := sess.End(result, reason); err == nil {
			d.finalize(sess)
		}
	case session.StatusPreparing:
		sess.Abandon()
	}
	d.cancelDriver(sess.ID())
}

// Wait blocks until every driver goroutine has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// finalize hands the terminal summary to the history collaborator.
func (d *Dispatcher) finalize(sess *session.Session) {
	sum, ok := sess.Summary()
	if !ok {
		return
	}
	metrics.RecordSessionFinished(string(sum.Status))
	if d.history != nil {
		d.history.Record(sum)
	}
	d.lg.Info(context.Background(), "session finalized",
		logger.String("session_id", sum.SessionID),
		logger.String("status", string(sum.Status)),
		logger.Bool("success", sum.Success),
		logger.Int("total_notes", sum.TotalNotes),
		logger.Int("error_notes", sum.ErrorNotes),
	)
}

// cancelDriver cancels a running driver; a no-op when none is
// running, so cancellation is idempotent.
func (d *Dispatcher) cancelDriver(id string) {
	d.mu.Lock()
	cancel, ok := d.drivers[id]
	delete(d.drivers, id)
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

func (d *Dispatcher) clearDriver(id string) {
	d.mu.Lock()
	delete(d.drivers, id)
	d.mu.Unlock()
}
