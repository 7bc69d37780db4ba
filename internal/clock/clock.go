// Package clock abstracts wall time so lock staleness, claim timeouts and
// the time budget can be driven deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock provides the current time and a cancellable sleep.
//
// Implemented by Real (production) and testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the system wall clock.
//
// Thread-safety: Real is stateless and safe for concurrent use.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done, whichever comes first.
// Returns ctx.Err() when interrupted.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
