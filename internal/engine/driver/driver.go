// Package driver turns a note schedule plus a tempo into real-time
// playback events on the session's log.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/pkg/logger"
	"github.com/termitech/maestro/pkg/metrics"
)

// progressStep is the percentage granularity of progress log lines.
const progressStep = 20

// Driver plays one session's schedule against its clock. Events are
// appended in logical order as soon as possible after their deadline;
// the driver never bursts to catch up and never emits an event twice.
type Driver struct {
	sess         *session.Session
	lagTolerance time.Duration
	log          logger.Logger
}

// New creates a driver for the session. A note delivered more than
// lagTolerance past its deadline counts as an error note.
func New(sess *session.Session, lagTolerance time.Duration, log logger.Logger) *Driver {
	return &Driver{
		sess:         sess,
		lagTolerance: lagTolerance,
		log:          log.Named("driver"),
	}
}

// stepKind orders releases before presses at the same beat.
type stepKind int

const (
	stepNoteOff stepKind = iota
	stepNoteOn
)

type step struct {
	beat float64
	kind stepKind
	note score.NoteEvent
}

// Validate checks the session's effective schedule before playback.
// Returns ErrScheduleFault wrapping the first invalid entry.
func (d *Driver) Validate() error {
	sched := d.sess.Piece().Schedule.ForHands(d.sess.Hands())
	if err := sched.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrScheduleFault, err)
	}
	return nil
}

// Run plays the schedule to completion. It returns (true, nil) on
// natural completion, (false, nil) when cancelled via ctx, clock
// cancellation or a concurrently closed log, and (false, err) on a
// schedule fault. Run never ends or fails the session itself; the
// dispatcher owns terminal transitions.
func (d *Driver) Run(ctx context.Context) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}

	sched := d.sess.Piece().Schedule.ForHands(d.sess.Hands()).Sorted()
	steps := buildSteps(sched)
	clk := d.sess.Clock()

	held := map[score.Hand][]int{}
	totalOns := len(sched)
	var (
		onsDelivered int
		lastProgress int
	)

	d.log.Info(ctx, "playback started",
		logger.String("session_id", d.sess.ID()),
		logger.String("piece_id", d.sess.Piece().ID),
		logger.Int("notes", totalOns),
		logger.Int("tempo", d.sess.Tempo()),
	)

	for _, st := range steps {
		deadline := clk.At(st.beat)
		if err := clk.WaitUntil(ctx, deadline); err != nil {
			d.log.Debug(ctx, "playback cancelled",
				logger.String("session_id", d.sess.ID()),
				logger.Error(err),
			)
			return false, nil
		}

		lag := clk.Position() - deadline
		metrics.RecordDriverLag(float64(lag) / float64(time.Millisecond))

		if done := d.emit(st, held, lag); done {
			return false, nil
		}

		if st.kind == stepNoteOn {
			onsDelivered++
			pct := onsDelivered * 100 / totalOns
			if pct/progressStep > lastProgress/progressStep {
				lastProgress = pct
				d.appendLog(fmt.Sprintf("playing progress: %d%%", pct))
			}
		}
	}

	d.log.Info(ctx, "playback complete",
		logger.String("session_id", d.sess.ID()),
		logger.Int("notes", onsDelivered),
	)
	return true, nil
}

// emit appends the note frame and, for presses, the hand pose that
// follows it. Returns true when the log has been closed under us.
func (d *Driver) emit(st step, held map[score.Hand][]int, lag time.Duration) bool {
	action := event.NoteOff
	if st.kind == stepNoteOn {
		action = event.NoteOn
	}
	frame := event.NoteFramePayload{
		Action: action,
		Pitch:  st.note.Pitch,
		Note:   score.NoteName(st.note.Pitch),
		Hand:   string(st.note.Hand),
		Beat:   st.beat,
	}
	if st.kind == stepNoteOn {
		frame.Velocity = st.note.Velocity
	}

	if _, err := d.sess.Log().Append(event.TypeNoteFrame, frame); err != nil {
		return errors.Is(err, event.ErrLogClosed)
	}

	if st.kind == stepNoteOn {
		late := lag > d.lagTolerance
		d.sess.RecordNote(late)
		metrics.RecordNoteEmitted()
		if late {
			metrics.RecordNoteError()
			d.log.Warn(context.Background(), "note past deadline",
				logger.String("session_id", d.sess.ID()),
				logger.Int("pitch", st.note.Pitch),
				logger.Duration("lag", lag),
			)
		}

		held[st.note.Hand] = addKey(held[st.note.Hand], st.note.Pitch)
		pose := event.HandPosePayload{
			Hand: string(st.note.Hand),
			Keys: append([]int(nil), held[st.note.Hand]...),
			Beat: st.beat,
		}
		if _, err := d.sess.Log().Append(event.TypeHandPose, pose); err != nil {
			return errors.Is(err, event.ErrLogClosed)
		}
	} else {
		held[st.note.Hand] = removeKey(held[st.note.Hand], st.note.Pitch)
	}
	return false
}

func (d *Driver) appendLog(msg string) {
	// Best effort: a closed log means the session terminated and the
	// next wait will observe the cancelled clock.
	_, _ = d.sess.Log().Append(event.TypeLog, event.LogPayload{Message: msg})
}

// buildSteps flattens notes into press/release steps ordered by beat,
// releases first on ties so a repeated pitch releases before it
// re-presses.
func buildSteps(sched score.Schedule) []step {
	steps := make([]step, 0, 2*len(sched))
	for _, n := range sched {
		steps = append(steps,
			step{beat: n.Beat, kind: stepNoteOn, note: n},
			step{beat: n.Beat + n.Duration, kind: stepNoteOff, note: n},
		)
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].beat != steps[j].beat {
			return steps[i].beat < steps[j].beat
		}
		return steps[i].kind < steps[j].kind
	})
	return steps
}

func addKey(keys []int, pitch int) []int {
	for _, k := range keys {
		if k == pitch {
			return keys
		}
	}
	keys = append(keys, pitch)
	sort.Ints(keys)
	return keys
}

func removeKey(keys []int, pitch int) []int {
	for i, k := range keys {
		if k == pitch {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
