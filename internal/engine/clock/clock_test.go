package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/termitech/maestro/internal/engine/clock"
	. "github.com/smartystreets/goconvey/convey"
)

// 6000 BPM keeps test waits in the 10ms range.
const testBPM = 6000

func TestClockBeats(t *testing.T) {
	Convey("Given a clock at 120 BPM", t, func() {
		c := clock.New(120)

		Convey("Then a beat lasts half a second", func() {
			So(c.BeatDuration(), ShouldEqual, 500*time.Millisecond)
			So(c.At(2), ShouldEqual, time.Second)
			So(c.At(0.5), ShouldEqual, 250*time.Millisecond)
		})
	})
}

func TestClockWaitUntil(t *testing.T) {
	Convey("Given a running clock", t, func() {
		c := clock.New(testBPM)

		Convey("When waiting for a near offset", func() {
			start := time.Now()
			err := c.WaitUntil(context.Background(), c.At(2))

			Convey("Then it returns after roughly two beats", func() {
				So(err, ShouldBeNil)
				So(time.Since(start), ShouldBeGreaterThanOrEqualTo, c.At(2))
				So(c.Position(), ShouldBeGreaterThanOrEqualTo, c.At(2))
			})
		})

		Convey("When waiting for an offset already in the past", func() {
			err := c.WaitUntil(context.Background(), 0)

			Convey("Then it returns immediately", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When the context is cancelled mid-wait", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(5 * time.Millisecond)
				cancel()
			}()
			err := c.WaitUntil(ctx, c.At(1e6))

			Convey("Then the wait reports the context error", func() {
				So(err, ShouldEqual, context.Canceled)
			})
		})

		Convey("When the clock is cancelled mid-wait", func() {
			go func() {
				time.Sleep(5 * time.Millisecond)
				c.Cancel()
			}()
			err := c.WaitUntil(context.Background(), c.At(1e6))

			Convey("Then the wait reports cancellation", func() {
				So(err, ShouldEqual, clock.ErrClockCancelled)
			})
		})
	})
}

func TestClockPauseResume(t *testing.T) {
	Convey("Given a clock paused after some progress", t, func() {
		c := clock.New(testBPM)
		time.Sleep(5 * time.Millisecond)
		c.Pause()
		mark := c.Position()

		Convey("Then position freezes while paused", func() {
			time.Sleep(10 * time.Millisecond)
			So(c.Position(), ShouldEqual, mark)
		})

		Convey("Then pausing again is a no-op", func() {
			c.Pause()
			So(c.Position(), ShouldEqual, mark)
		})

		Convey("When resumed, the paused stretch does not count", func() {
			time.Sleep(10 * time.Millisecond)
			c.Resume()
			pos := c.Position()
			So(pos, ShouldBeGreaterThanOrEqualTo, mark)
			So(pos, ShouldBeLessThan, mark+5*time.Millisecond)
		})

		Convey("When a waiter targets an offset past the freeze point", func() {
			target := mark + c.At(1)
			done := make(chan error, 1)
			go func() { done <- c.WaitUntil(context.Background(), target) }()

			Convey("Then it stays blocked until resume", func() {
				select {
				case <-done:
					t.Fatal("wait returned while clock paused")
				case <-time.After(10 * time.Millisecond):
				}

				c.Resume()
				select {
				case err := <-done:
					So(err, ShouldBeNil)
					So(c.Position(), ShouldBeGreaterThanOrEqualTo, target)
				case <-time.After(time.Second):
					t.Fatal("wait did not return after resume")
				}
			})
		})
	})

	Convey("Given a cancelled clock", t, func() {
		c := clock.New(testBPM)
		c.Cancel()

		Convey("Then waits fail immediately and cancel is idempotent", func() {
			So(c.WaitUntil(context.Background(), 0), ShouldEqual, clock.ErrClockCancelled)
			So(c.Cancel, ShouldNotPanic)
		})
	})
}
