package control_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/internal/engine/control"
	"github.com/termitech/maestro/internal/engine/driver"
	"github.com/termitech/maestro/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const testTempo = 6000

type fakeHistory struct {
	mu      sync.Mutex
	records []session.Summary
}

func (f *fakeHistory) Record(sum session.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, sum)
}

func (f *fakeHistory) all() []session.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Summary(nil), f.records...)
}

func shortPiece() *score.Piece {
	return &score.Piece{
		ID:   "short",
		Name: "Short",
		Schedule: score.Schedule{
			{Beat: 0, Duration: 0.5, Pitch: 60, Velocity: 80, Hand: score.HandRight},
			{Beat: 1, Duration: 0.5, Pitch: 62, Velocity: 80, Hand: score.HandRight},
			{Beat: 2, Duration: 0.5, Pitch: 64, Velocity: 80, Hand: score.HandRight},
			{Beat: 3, Duration: 0.5, Pitch: 65, Velocity: 80, Hand: score.HandRight},
		},
	}
}

func slowPiece() *score.Piece {
	return &score.Piece{
		ID:   "slow",
		Name: "Slow",
		Schedule: score.Schedule{
			{Beat: 1e6, Duration: 1, Pitch: 60, Velocity: 80, Hand: score.HandRight},
		},
	}
}

func waitForStatus(t *testing.T, s *session.Session, want session.Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for s.Status() != want {
		select {
		case <-deadline:
			t.Fatalf("session never reached %s, stuck in %s", want, s.Status())
		case <-time.After(time.Millisecond):
		}
	}
}

func statusTrail(s *session.Session) []string {
	events, _, _ := s.Log().Since(0)
	var trail []string
	for _, e := range events {
		if e.Type == event.TypeStatus {
			trail = append(trail, e.Payload.(event.StatusPayload).Status)
		}
	}
	return trail
}

func countFrames(s *session.Session) int {
	events, _, _ := s.Log().Since(0)
	n := 0
	for _, e := range events {
		if e.Type == event.TypeNoteFrame {
			n++
		}
	}
	return n
}

func TestDispatcherNaturalCompletion(t *testing.T) {
	Convey("Given a dispatcher and a short playing session", t, func() {
		history := &fakeHistory{}
		d := control.New(history, logger.Get(), control.WithLagTolerance(50*time.Millisecond))
		sess := session.New("session_ctl", shortPiece(), testTempo, score.HandsBoth, 256)

		Convey("When started and left to finish", func() {
			So(d.Apply(context.Background(), sess, control.CommandStart), ShouldBeNil)
			waitForStatus(t, sess, session.StatusEnded)
			d.Wait()

			Convey("Then the terminal event reports success with all notes", func() {
				trail := statusTrail(sess)
				So(trail[0], ShouldEqual, "playing")
				So(trail[len(trail)-1], ShouldEqual, "ended")

				events, _, _ := sess.Log().Since(0)
				last := events[len(events)-1].Payload.(event.StatusPayload)
				So(*last.Success, ShouldBeTrue)
				So(last.TotalNotes, ShouldEqual, 4)
				So(last.ErrorNotes, ShouldEqual, 0)
			})

			Convey("And the summary lands in history exactly once", func() {
				records := history.all()
				So(len(records), ShouldEqual, 1)
				So(records[0].SessionID, ShouldEqual, "session_ctl")
				So(records[0].Success, ShouldBeTrue)
				So(records[0].Status, ShouldEqual, session.StatusEnded)
			})

			Convey("And a second start is rejected", func() {
				So(d.Apply(context.Background(), sess, control.CommandStart), ShouldWrap, session.ErrInvalidTransition)
			})
		})
	})
}

func TestDispatcherPauseStop(t *testing.T) {
	Convey("Given a session stopped before its first note", t, func() {
		history := &fakeHistory{}
		d := control.New(history, logger.Get())
		sess := session.New("session_ctl", slowPiece(), testTempo, score.HandsBoth, 256)

		ctx := context.Background()
		So(d.Apply(ctx, sess, control.CommandStart), ShouldBeNil)
		So(d.Apply(ctx, sess, control.CommandPause), ShouldBeNil)
		So(d.Apply(ctx, sess, control.CommandStop), ShouldBeNil)
		d.Wait()

		Convey("Then the trail is playing, paused, ended with no frames", func() {
			So(statusTrail(sess), ShouldResemble, []string{"playing", "paused", "ended"})
			So(countFrames(sess), ShouldEqual, 0)
		})

		Convey("Then the stop was not a natural completion", func() {
			records := history.all()
			So(len(records), ShouldEqual, 1)
			So(records[0].Success, ShouldBeFalse)
		})

		Convey("Then a second stop returns an invalid transition", func() {
			err := d.Apply(ctx, sess, control.CommandStop)
			So(err, ShouldWrap, session.ErrInvalidTransition)

			Convey("And no duplicate terminal event was emitted", func() {
				So(statusTrail(sess), ShouldResemble, []string{"playing", "paused", "ended"})
				So(len(history.all()), ShouldEqual, 1)
			})
		})
	})
}

func TestDispatcherPauseResume(t *testing.T) {
	Convey("Given a session paused in the middle of its schedule", t, func() {
		history := &fakeHistory{}
		// Generous tolerance: this test is about delivery equivalence,
		// not scheduling precision.
		d := control.New(history, logger.Get(), control.WithLagTolerance(500*time.Millisecond))
		// 600 bpm = 100ms beats: presses land at 0/100/200/300ms.
		sess := session.New("session_ctl", shortPiece(), 600, score.HandsBoth, 256)

		ctx := context.Background()
		So(d.Apply(ctx, sess, control.CommandStart), ShouldBeNil)
		time.Sleep(150 * time.Millisecond)
		So(d.Apply(ctx, sess, control.CommandPause), ShouldBeNil)

		// Hold the pause for longer than the rest of the schedule
		// would have taken. Any frame emitted in that window would be
		// the driver ignoring the frozen clock.
		time.Sleep(50 * time.Millisecond)
		framesWhilePaused := countFrames(sess)
		time.Sleep(300 * time.Millisecond)

		Reset(func() {
			d.Halt(sess, "test torn down")
			d.Wait()
		})

		Convey("Then no frames are emitted while paused", func() {
			So(countFrames(sess), ShouldEqual, framesWhilePaused)
			So(framesWhilePaused, ShouldBeLessThan, 8)
		})

		Convey("When resumed and left to finish", func() {
			So(d.Apply(ctx, sess, control.CommandResume), ShouldBeNil)
			waitForStatus(t, sess, session.StatusEnded)
			d.Wait()

			Convey("Then the run is equivalent to an uninterrupted one", func() {
				events, _, _ := sess.Log().Since(0)

				// Gap-free sequence numbers from the very first event.
				for i, e := range events {
					So(e.Seq, ShouldEqual, uint64(i+1))
				}

				// Every press and release delivered exactly once.
				presses := map[int]int{}
				var ons, offs int
				for _, e := range events {
					if e.Type != event.TypeNoteFrame {
						continue
					}
					p := e.Payload.(event.NoteFramePayload)
					if p.Action == event.NoteOn {
						ons++
						presses[p.Pitch]++
					} else {
						offs++
					}
				}
				So(ons, ShouldEqual, 4)
				So(offs, ShouldEqual, 4)
				for pitch, n := range presses {
					So(n, ShouldEqual, 1)
					So(pitch, ShouldBeIn, []int{60, 62, 64, 65})
				}

				// The pause cost wall time, never notes.
				total, errs := sess.Counters()
				So(total, ShouldEqual, 4)
				So(errs, ShouldEqual, 0)
			})

			Convey("Then the trail shows the detour through paused", func() {
				So(statusTrail(sess), ShouldResemble, []string{"playing", "paused", "playing", "ended"})
			})

			Convey("Then the performance still grades as a success", func() {
				records := history.all()
				So(len(records), ShouldEqual, 1)
				So(records[0].Success, ShouldBeTrue)
				So(records[0].TotalNotes, ShouldEqual, 4)
				So(records[0].ErrorNotes, ShouldEqual, 0)
			})
		})
	})
}

func TestDispatcherScheduleFault(t *testing.T) {
	Convey("Given a session over a malformed schedule", t, func() {
		history := &fakeHistory{}
		d := control.New(history, logger.Get())
		bad := &score.Piece{
			ID:   "bad",
			Name: "Bad",
			Schedule: score.Schedule{
				{Beat: 0, Duration: -1, Pitch: 60, Velocity: 80, Hand: score.HandRight},
			},
		}
		sess := session.New("session_ctl", bad, testTempo, score.HandsBoth, 256)

		Convey("When start is applied", func() {
			err := d.Apply(context.Background(), sess, control.CommandStart)

			Convey("Then the fault is reported and the session is in error", func() {
				So(err, ShouldWrap, driver.ErrScheduleFault)
				So(sess.Status(), ShouldEqual, session.StatusError)

				events, _, _ := sess.Log().Since(0)
				p := events[len(events)-1].Payload.(event.StatusPayload)
				So(p.Status, ShouldEqual, "error")
				So(p.Message, ShouldNotBeEmpty)
			})

			Convey("And no further commands are accepted", func() {
				So(d.Apply(context.Background(), sess, control.CommandPause), ShouldWrap, session.ErrInvalidTransition)
				So(d.Apply(context.Background(), sess, control.CommandStop), ShouldWrap, session.ErrInvalidTransition)
			})

			Convey("And the failure is recorded in history", func() {
				records := history.all()
				So(len(records), ShouldEqual, 1)
				So(records[0].Status, ShouldEqual, session.StatusError)
				So(records[0].Success, ShouldBeFalse)
			})
		})
	})
}

func TestDispatcherHalt(t *testing.T) {
	Convey("Given a dispatcher tearing sessions down", t, func() {
		history := &fakeHistory{}
		d := control.New(history, logger.Get())

		Convey("When halting a playing session", func() {
			sess := session.New("session_ctl", slowPiece(), testTempo, score.HandsBoth, 256)
			So(d.Apply(context.Background(), sess, control.CommandStart), ShouldBeNil)
			d.Halt(sess, "session deleted")
			d.Wait()

			Convey("Then it ends as stopped and is recorded", func() {
				So(sess.Status(), ShouldEqual, session.StatusEnded)
				So(len(history.all()), ShouldEqual, 1)
			})
		})

		Convey("When halting a preparing session", func() {
			sess := session.New("session_ctl2", slowPiece(), testTempo, score.HandsBoth, 256)
			d.Halt(sess, "session deleted")

			Convey("Then the log closes without a terminal event", func() {
				So(sess.Log().Closed(), ShouldBeTrue)
				So(len(statusTrail(sess)), ShouldEqual, 0)
				So(len(history.all()), ShouldEqual, 0)
			})
		})

		Convey("When halting an already-ended session twice", func() {
			sess := session.New("session_ctl3", slowPiece(), testTempo, score.HandsBoth, 256)
			So(d.Apply(context.Background(), sess, control.CommandStart), ShouldBeNil)
			d.Halt(sess, "session deleted")
			d.Halt(sess, "session deleted")
			d.Wait()

			Convey("Then cancellation stays idempotent", func() {
				So(sess.Status(), ShouldEqual, session.StatusEnded)
				So(len(history.all()), ShouldEqual, 1)
			})
		})
	})
}

func TestParseCommand(t *testing.T) {
	Convey("Given control command strings", t, func() {
		Convey("Then known commands parse", func() {
			for _, valid := range []string{"start", "pause", "resume", "stop"} {
				cmd, err := control.ParseCommand(valid)
				So(err, ShouldBeNil)
				So(string(cmd), ShouldEqual, valid)
			}
		})

		Convey("Then unknown commands are rejected", func() {
			_, err := control.ParseCommand("rewind")
			So(err, ShouldWrap, control.ErrUnknownCommand)
		})
	})
}
