package rate

import (
	"context"
	"time"
)

// Decision is the outcome of one ledger step.
type Decision struct {
	Allowed bool
	// Count is the number of entries in the window after the step.
	Count int
	// Oldest is the earliest entry still in the window. It is zero when the
	// window is empty.
	Oldest time.Time
}

// RetryAfter reports how long until the oldest entry leaves the window.
func (d Decision) RetryAfter(now time.Time, window time.Duration) time.Duration {
	if d.Allowed || d.Oldest.IsZero() {
		return 0
	}
	wait := d.Oldest.Add(window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Ledger records attempts per identifier. Record must prune, count and
// conditionally append as a single atomic step.
type Ledger interface {
	Record(ctx context.Context, identifier string, now time.Time, window time.Duration, max int) (Decision, error)
}
