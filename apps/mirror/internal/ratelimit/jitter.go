// Package ratelimit throttles the mirror between downloads.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default bounds of the pause after each download.
const (
	DefaultMin = 1000 * time.Millisecond
	DefaultMax = 10000 * time.Millisecond
)

// Limiter pauses the caller after a download.
type Limiter interface {
	Delay(ctx context.Context) error
}

// Compile-time checks.
var (
	_ Limiter = Jitter{}
	_ Limiter = None{}
)

// Jitter sleeps for a uniformly random whole number of milliseconds in
// [ceil(Min), floor(Max)). A zero Jitter uses DefaultMin and DefaultMax.
type Jitter struct {
	Min time.Duration
	Max time.Duration

	// Int64N draws from [0, n). Nil uses math/rand/v2.
	Int64N func(n int64) int64
}

// NewJitter returns a Jitter over [lower, upper).
func NewJitter(lower, upper time.Duration) Jitter {
	return Jitter{Min: lower, Max: upper}
}

// Next draws the next pause. When the range holds no whole millisecond the
// lower bound is returned.
func (j Jitter) Next() time.Duration {
	lo, hi := j.bounds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	draw := rand.Int64N
	if j.Int64N != nil {
		draw = j.Int64N
	}
	return time.Duration(lo+draw(hi-lo)) * time.Millisecond
}

// Delay sleeps for Next() or until ctx is done.
func (j Jitter) Delay(ctx context.Context) error {
	return Sleep(ctx, j.Next())
}

func (j Jitter) bounds() (lo, hi int64) {
	lower, upper := j.Min, j.Max
	if lower == 0 && upper == 0 {
		lower, upper = DefaultMin, DefaultMax
	}
	lo = int64((lower + time.Millisecond - 1) / time.Millisecond)
	hi = int64(upper / time.Millisecond)
	return lo, hi
}

// None never pauses.
type None struct{}

// Delay returns ctx.Err() without sleeping.
func (None) Delay(ctx context.Context) error { return ctx.Err() }

// Sleep pauses for d, returning early with ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
