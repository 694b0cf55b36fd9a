// Package tasktest provides a virtual clock and a scripted provider for
// exercising task orchestration without network access or real sleeps.
package tasktest

import (
	"sync"
	"time"

	"mediarelay/internal/task"
)

// FakeClock is a virtual task.Clock. In auto mode every timer fires as soon
// as it is created and the clock advances by its duration; otherwise timers
// fire only when Advance moves past them.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	auto    bool
	timers  []*fakeTimer
	waits   []time.Duration
	created chan time.Duration
}

// NewFakeClock returns a manual clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start, created: make(chan time.Duration, 128)}
}

// NewAutoClock returns a clock whose timers fire immediately.
func NewAutoClock(start time.Time) *FakeClock {
	c := NewFakeClock(start)
	c.auto = true
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) NewTimer(d time.Duration) task.Timer {
	c.mu.Lock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.waits = append(c.waits, d)
	if c.auto {
		c.now = t.at
		t.fired = true
		t.ch <- c.now
	} else {
		c.timers = append(c.timers, t)
	}
	c.mu.Unlock()
	select {
	case c.created <- d:
	default:
	}
	return t
}

// Advance moves the clock forward and fires every timer that came due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if !t.at.After(c.now) {
			t.fired = true
			t.ch <- c.now
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
}

// TimerCreated returns a channel receiving the duration of every new timer.
func (c *FakeClock) TimerCreated() <-chan time.Duration {
	return c.created
}

// Waits returns the durations of all timers created so far.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	ch      chan time.Time
	fired   bool
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

var _ task.Clock = (*FakeClock)(nil)
