package poll

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrExhausted is returned when MaxAttempts attempts ran without the predicate succeeding.
	ErrExhausted = errors.New("poll attempts exhausted")
	// ErrDeadline is returned when the wall-clock deadline passed before success.
	ErrDeadline = errors.New("poll deadline exceeded")
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy bounds a polling loop. MaxAttempts of zero means unbounded attempts
// and a zero Deadline means no wall-clock bound; at least one should be set.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	Deadline    time.Time
	// SleepFirst waits one interval before every attempt, including the first.
	// Otherwise the loop waits only between attempts.
	SleepFirst bool
	Sleeper    Sleeper
	Now        func() time.Time
}

// Attempt describes the current iteration passed to a Func.
type Attempt struct {
	Number   int // 1-based
	Interval time.Duration
}

// Result tells the loop whether to stop. A positive Interval replaces the
// interval used for subsequent waits.
type Result struct {
	Done     bool
	Interval time.Duration
}

// Func performs one attempt. A non-nil error stops the loop immediately.
type Func func(ctx context.Context, attempt Attempt) (Result, error)

// Until runs fn until it reports Done, returns an error, the attempts are
// exhausted, or the deadline passes. It returns the number of attempts made.
func Until(ctx context.Context, p Policy, fn Func) (int, error) {
	sleep := p.Sleeper
	if sleep == nil {
		sleep = Sleep
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	interval := p.Interval

	pastDeadline := func() bool {
		return !p.Deadline.IsZero() && !now().Before(p.Deadline)
	}

	attempts := 0
	for {
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return attempts, ErrExhausted
		}
		if pastDeadline() {
			return attempts, ErrDeadline
		}
		if p.SleepFirst || attempts > 0 {
			if err := sleep(ctx, interval); err != nil {
				return attempts, err
			}
			if pastDeadline() {
				return attempts, ErrDeadline
			}
		}
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts++
		res, err := fn(ctx, Attempt{Number: attempts, Interval: interval})
		if err != nil {
			return attempts, err
		}
		if res.Done {
			return attempts, nil
		}
		if res.Interval > 0 {
			interval = res.Interval
		}
	}
}
