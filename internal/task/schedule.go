package task

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Clock abstracts time so polling loops can run against a virtual clock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer the schedule needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }

func (r realTimer) Stop() bool { return r.t.Stop() }

// ErrScheduleExhausted is returned by Schedule.Run when the attempt or
// deadline bound is reached before the step reports completion.
var ErrScheduleExhausted = errors.New("schedule exhausted")

// Schedule is a fixed-delay retry plan. The wait happens before every
// attempt. At least one of MaxAttempts and Deadline must bound the loop.
type Schedule struct {
	Interval    time.Duration
	MaxAttempts int
	Deadline    time.Duration
}

// Validate reports whether the schedule terminates.
func (s Schedule) Validate() error {
	if s.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if s.MaxAttempts < 0 || s.Deadline < 0 {
		return fmt.Errorf("bounds must not be negative")
	}
	if s.MaxAttempts == 0 && s.Deadline == 0 {
		return fmt.Errorf("schedule needs max attempts or a deadline")
	}
	return nil
}

// Step is one attempt. Returning done=true or an error stops the schedule.
type Step func(ctx context.Context, attempt int) (done bool, err error)

// Run drives step until it is done, fails, the bounds are reached or ctx
// ends. It returns the number of attempts made. Once ctx is done no further
// step is started and any pending timer is stopped.
func (s Schedule) Run(ctx context.Context, clock Clock, step Step) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if clock == nil {
		clock = RealClock()
	}
	start := clock.Now()
	attempts := 0
	for s.MaxAttempts == 0 || attempts < s.MaxAttempts {
		if s.Deadline > 0 && clock.Now().Add(s.Interval).Sub(start) > s.Deadline {
			break
		}
		if err := sleep(ctx, clock, s.Interval); err != nil {
			return attempts, err
		}
		attempts++
		done, err := step(ctx, attempts)
		if err != nil {
			return attempts, err
		}
		if done {
			return attempts, nil
		}
	}
	return attempts, ErrScheduleExhausted
}

func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := clock.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C():
		// both may be ready at once; cancellation wins
		return ctx.Err()
	}
}
