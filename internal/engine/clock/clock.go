// Package clock provides the tempo clock that converts beat offsets
// into cancellable wall-clock waits, with pause and resume.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock measures schedule time for one performance. Schedule position
// is the wall time spent running (paused stretches are excluded), so
// a schedule offset in beats maps to position >= offset*BeatDuration.
//
// The zero value is not usable; use New.
type Clock struct {
	mu        sync.Mutex
	beat      time.Duration
	consumed  time.Duration // position accumulated before the last resume
	resumedAt time.Time     // origin of the current running stretch
	paused    bool
	cancelled bool
	change    chan struct{} // closed on pause/resume/cancel
}

// New creates a running clock at the given tempo. Position starts at
// zero.
func New(bpm int) *Clock {
	if bpm <= 0 {
		bpm = 1
	}
	return &Clock{
		beat:      time.Minute / time.Duration(bpm),
		resumedAt: time.Now(),
		change:    make(chan struct{}),
	}
}

// BeatDuration returns the wall-clock length of one beat.
func (c *Clock) BeatDuration() time.Duration {
	return c.beat
}

// At converts a beat offset into a schedule position.
func (c *Clock) At(beat float64) time.Duration {
	return time.Duration(beat * float64(c.beat))
}

// Position returns the schedule time consumed so far.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

// position must be called with c.mu held.
func (c *Clock) position() time.Duration {
	if c.paused || c.cancelled {
		return c.consumed
	}
	return c.consumed + time.Since(c.resumedAt)
}

// Pause freezes the clock, banking the position consumed so far.
// Pausing a paused or cancelled clock is a no-op.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return
	}
	c.consumed += time.Since(c.resumedAt)
	c.paused = true
	c.notify()
}

// Resume restarts a paused clock from its banked position; the paused
// stretch never counts toward schedule time.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused || c.cancelled {
		return
	}
	c.paused = false
	c.resumedAt = time.Now()
	c.notify()
}

// Cancel permanently stops the clock and releases every waiter with
// ErrClockCancelled. Idempotent.
func (c *Clock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	if !c.paused {
		c.consumed += time.Since(c.resumedAt)
	}
	c.cancelled = true
	c.notify()
}

// notify must be called with c.mu held.
func (c *Clock) notify() {
	close(c.change)
	c.change = make(chan struct{})
}

// WaitUntil blocks until the schedule position reaches offset,
// following pauses and resumes. It returns ctx.Err() if the context
// is done first and ErrClockCancelled if the clock is cancelled.
// Returns immediately when the position is already past offset.
func (c *Clock) WaitUntil(ctx context.Context, offset time.Duration) error {
	for {
		c.mu.Lock()
		if c.cancelled {
			c.mu.Unlock()
			return ErrClockCancelled
		}
		pos := c.position()
		running := !c.paused
		change := c.change
		c.mu.Unlock()

		if running && pos >= offset {
			return nil
		}

		if !running {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-change:
			}
			continue
		}

		timer := time.NewTimer(offset - pos)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-change:
			timer.Stop()
		case <-timer.C:
		}
	}
}
