package engine

import (
	"time"

	"github.com/roach88/wxzimport/internal/clock"
)

// DefaultBudget is the wall-clock budget of one invocation.
const DefaultBudget = 10 * time.Second

// headroom is how many more records must fit in the remaining budget
// before another one is started.
const headroom = 4

// Governor decides whether an invocation has time for another record.
//
// It keeps only invocation-local counters: the start time and how many
// records this invocation has completed. From these it estimates the
// average time per record and stops once headroom more records at that
// rate would overrun the budget. The cutoff is deliberately early so an
// invocation is not killed mid-record by an external time limit.
//
// Governor is not safe for concurrent use; the run loop owns it.
type Governor struct {
	clock     clock.Clock
	budget    time.Duration
	start     time.Time
	completed int
}

// NewGovernor starts a governor now. A budget <= 0 means unlimited.
func NewGovernor(c clock.Clock, budget time.Duration) *Governor {
	return &Governor{clock: c, budget: budget, start: c.Now()}
}

// Done records one completed record.
func (g *Governor) Done() {
	g.completed++
}

// CanContinue reports whether another record can be started.
//
// Always true until a record has completed, since there is no rate to
// estimate from.
func (g *Governor) CanContinue() bool {
	if g.budget <= 0 || g.completed == 0 {
		return true
	}
	perRecord := g.Elapsed() / time.Duration(g.completed)
	return perRecord*time.Duration(g.completed+headroom) <= g.budget
}

// Completed returns how many records have completed.
func (g *Governor) Completed() int {
	return g.completed
}

// Elapsed returns the time since the governor started.
func (g *Governor) Elapsed() time.Duration {
	return g.clock.Now().Sub(g.start)
}
