package session_test

import (
	"testing"

	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/internal/domain/grading"
	"github.com/termitech/maestro/internal/domain/score"
	"github.com/termitech/maestro/internal/domain/session"
	"github.com/termitech/maestro/internal/engine/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func testPiece() *score.Piece {
	return &score.Piece{
		ID:   "demo",
		Name: "Demo",
		Schedule: score.Schedule{
			{Beat: 0, Duration: 1, Pitch: 60, Velocity: 80, Hand: score.HandRight},
		},
	}
}

func newSession() *session.Session {
	return session.New("session_abc", testPiece(), 120, score.HandsBoth, 64)
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a freshly created session", t, func() {
		s := newSession()

		Convey("Then it starts in preparing with an empty log", func() {
			So(s.Status(), ShouldEqual, session.StatusPreparing)
			So(s.Log().LastSeq(), ShouldEqual, 0)
		})

		Convey("When playback begins", func() {
			So(s.Begin(clock.New(s.Tempo())), ShouldBeNil)

			Convey("Then the session plays and a status event is logged", func() {
				So(s.Status(), ShouldEqual, session.StatusPlaying)
				events, _, _ := s.Log().Since(0)
				So(len(events), ShouldEqual, 1)
				So(events[0].Type, ShouldEqual, event.TypeStatus)
				So(events[0].Payload.(event.StatusPayload).Status, ShouldEqual, "playing")
			})

			Convey("And beginning again is rejected", func() {
				So(s.Begin(clock.New(s.Tempo())), ShouldWrap, session.ErrInvalidTransition)
			})

			Convey("When paused and resumed", func() {
				So(s.Pause(), ShouldBeNil)
				So(s.Status(), ShouldEqual, session.StatusPaused)
				So(s.Resume(), ShouldBeNil)
				So(s.Status(), ShouldEqual, session.StatusPlaying)

				Convey("Then the log holds playing, paused, playing in order", func() {
					events, _, _ := s.Log().Since(0)
					So(len(events), ShouldEqual, 3)
					statuses := []string{}
					for _, e := range events {
						statuses = append(statuses, e.Payload.(event.StatusPayload).Status)
					}
					So(statuses, ShouldResemble, []string{"playing", "paused", "playing"})
				})
			})

			Convey("When ended after a clean run", func() {
				s.RecordNote(false)
				s.RecordNote(false)
				result := grading.DefaultPolicy().Grade(grading.Outcome{Completed: true, TotalNotes: 2})
				So(s.End(result, "performance complete"), ShouldBeNil)

				Convey("Then the terminal event carries counters and success", func() {
					So(s.Status(), ShouldEqual, session.StatusEnded)
					events, _, _ := s.Log().Since(0)
					last := events[len(events)-1].Payload.(event.StatusPayload)
					So(last.Status, ShouldEqual, "ended")
					So(*last.Success, ShouldBeTrue)
					So(*last.AccuracyScore, ShouldEqual, 1.0)
					So(last.TotalNotes, ShouldEqual, 2)
					So(last.ErrorNotes, ShouldEqual, 0)
				})

				Convey("And the log is closed", func() {
					So(s.Log().Closed(), ShouldBeTrue)
				})

				Convey("And further transitions are rejected", func() {
					So(s.Pause(), ShouldWrap, session.ErrInvalidTransition)
					So(s.Resume(), ShouldWrap, session.ErrInvalidTransition)
					So(s.End(grading.Result{}, ""), ShouldWrap, session.ErrInvalidTransition)
					So(s.Fail("boom"), ShouldWrap, session.ErrInvalidTransition)
				})
			})
		})

		Convey("When pause is attempted before playback", func() {
			So(s.Pause(), ShouldWrap, session.ErrInvalidTransition)
		})

		Convey("When the session fails from preparing", func() {
			So(s.Fail("malformed schedule"), ShouldBeNil)

			Convey("Then the error status is terminal and logged", func() {
				So(s.Status(), ShouldEqual, session.StatusError)
				So(s.Log().Closed(), ShouldBeTrue)
				events, _, _ := s.Log().Since(0)
				p := events[len(events)-1].Payload.(event.StatusPayload)
				So(p.Status, ShouldEqual, "error")
				So(p.Message, ShouldEqual, "malformed schedule")
				So(*p.Success, ShouldBeFalse)
			})
		})
	})
}

func TestSessionCounters(t *testing.T) {
	Convey("Given a playing session with late notes", t, func() {
		s := newSession()
		So(s.Begin(clock.New(s.Tempo())), ShouldBeNil)
		s.RecordNote(false)
		s.RecordNote(true)
		s.RecordNote(true)

		Convey("Then counters track deliveries and deadline misses", func() {
			total, errs := s.Counters()
			So(total, ShouldEqual, 3)
			So(errs, ShouldEqual, 2)
		})
	})
}

func TestSessionSnapshotAndSummary(t *testing.T) {
	Convey("Given a live session", t, func() {
		s := newSession()

		Convey("Then no summary is available yet", func() {
			_, ok := s.Summary()
			So(ok, ShouldBeFalse)
		})

		Convey("Then the snapshot reflects creation state", func() {
			snap := s.Snapshot()
			So(snap.ID, ShouldEqual, "session_abc")
			So(snap.PieceID, ShouldEqual, "demo")
			So(snap.Status, ShouldEqual, session.StatusPreparing)
			So(snap.StartedAt, ShouldBeNil)
		})
	})

	Convey("Given an ended session", t, func() {
		s := newSession()
		So(s.Begin(clock.New(s.Tempo())), ShouldBeNil)
		s.RecordNote(false)
		result := grading.DefaultPolicy().Grade(grading.Outcome{Completed: true, TotalNotes: 1})
		So(s.End(result, ""), ShouldBeNil)

		Convey("Then the summary carries the finalized record", func() {
			sum, ok := s.Summary()
			So(ok, ShouldBeTrue)
			So(sum.SessionID, ShouldEqual, "session_abc")
			So(sum.Status, ShouldEqual, session.StatusEnded)
			So(sum.Success, ShouldBeTrue)
			So(sum.TotalNotes, ShouldEqual, 1)
			So(sum.DurationSec, ShouldBeGreaterThanOrEqualTo, 0)
			So(sum.EndedAt.After(sum.StartedAt) || sum.EndedAt.Equal(sum.StartedAt), ShouldBeTrue)
		})
	})
}
