// This file defines how cache entries age: when data turns stale and when an
// unobserved entry may be garbage collected.

package expiration

import (
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
Strategy is the interface that all aging rules must follow. Instead of hard-coding
the staleness and retention math into the cache, we keep it behind a strategy so
it can be tested on its own and swapped if needed.
*/
type Strategy interface {

	// IsStale reports whether the entry's data should be revalidated.
	IsStale(types.Meta, types.Timing, time.Time) bool

	// IsCollectable reports whether an entry without observers may be removed.
	// The caller checks the observer count; the strategy only looks at time.
	IsCollectable(types.Meta, types.Timing, time.Time) bool
}

// Elapsed reports whether at least d has passed between since and now.
// A d of types.Never never elapses.
func Elapsed(since, now time.Time, d time.Duration) bool {
	if d == types.Never {
		return false
	}
	return now.Sub(since) >= d
}

// Remaining returns how long until d has elapsed since the given time.
// It returns 0 when already elapsed and types.Never for an infinite d.
func Remaining(since, now time.Time, d time.Duration) time.Duration {
	if d == types.Never {
		return types.Never
	}
	left := d - now.Sub(since)
	if left < 0 {
		return 0
	}
	return left
}
