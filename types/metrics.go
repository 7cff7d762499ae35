package types

import "sync/atomic"

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the query lifecycle. The cache calls these
methods whenever something happens; implementations must be safe for concurrent use.
*/
type Metrics interface {

	// Hit is called when a consumer subscribes to, or fetches, data that is still fresh.
	Hit()

	// Miss is called when a consumer finds the data absent or stale and a fetch is needed.
	Miss()

	// Fetch is called every time a fetcher is actually invoked.
	Fetch()

	// Dedup is called when a caller joins a fetch that is already in flight.
	Dedup()

	// Invalidate is called for every entry marked stale by an invalidation.
	Invalidate()

	// Expire is called when the garbage collector removes an unobserved entry.
	Expire()

	// Refresh is called when an interval refetch fires.
	Refresh()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

We don't want to force every user of the cache to implement metrics,
and we don't want nil checks around every call site.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()        {}
func (NoopMetrics) Miss()       {}
func (NoopMetrics) Fetch()      {}
func (NoopMetrics) Dedup()      {}
func (NoopMetrics) Invalidate() {}
func (NoopMetrics) Expire()     {}
func (NoopMetrics) Refresh()    {}

// Counters is a Metrics implementation backed by atomic counters.
type Counters struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	fetches     atomic.Uint64
	dedups      atomic.Uint64
	invalidated atomic.Uint64
	expired     atomic.Uint64
	refreshes   atomic.Uint64
}

func (c *Counters) Hit()        { c.hits.Add(1) }
func (c *Counters) Miss()       { c.misses.Add(1) }
func (c *Counters) Fetch()      { c.fetches.Add(1) }
func (c *Counters) Dedup()      { c.dedups.Add(1) }
func (c *Counters) Invalidate() { c.invalidated.Add(1) }
func (c *Counters) Expire()     { c.expired.Add(1) }
func (c *Counters) Refresh()    { c.refreshes.Add(1) }

// Stats is a point-in-time copy of Counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Fetches     uint64
	Dedups      uint64
	Invalidated uint64
	Expired     uint64
	Refreshes   uint64
}

// HitRatio returns Hits / (Hits + Misses), or 0 when nothing was recorded.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the counters.
func (c *Counters) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Fetches:     c.fetches.Load(),
		Dedups:      c.dedups.Load(),
		Invalidated: c.invalidated.Load(),
		Expired:     c.expired.Load(),
		Refreshes:   c.refreshes.Load(),
	}
}
