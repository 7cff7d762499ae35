package querycache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krisalay/query-cache/types"
)

/*
This file is the fetcher invocation tracker.

Every entry has at most one fetch attached. The fetch runs inside a
singleflight call keyed by "<entry id>/<flight seq>", so joiners that arrive
while it runs share the single result through DoChan. The key is set and
cleared under the shard lock; the fetch clears it before its function returns,
which means any caller that still sees the key set is guaranteed to find the
call registered in the group.
*/

// ensureFetchLocked joins the entry's running fetch or starts one.
// started is true when a new fetch was attached; the caller notifies observers.
func (c *Client[K, V]) ensureFetchLocked(e *entry[K, V]) (ch <-chan singleflight.Result, started bool, err error) {
	if e.fetching() {
		c.engine.Metrics.Dedup()
		c.log.Debug("joining fetch", "key", e.key, "flight", e.flight)
		return c.flights.DoChan(e.flight, joinFlight), false, nil
	}
	if e.fetcher == nil {
		return nil, false, ErrNoFetcher
	}
	if c.closed.Load() {
		return nil, false, ErrClosed
	}

	e.flightSeq++
	e.flight = strconv.FormatUint(e.id, 10) + "/" + strconv.FormatUint(e.flightSeq, 10)

	ctx, cancel := context.WithCancel(c.ctx)
	e.cancel = cancel
	e.state.StartFetch()

	c.wg.Add(1)
	ch = c.flights.DoChan(e.flight, c.fetchFunc(ctx, e, e.flightSeq, e.fetcher))
	c.publishLocked(EventUpdated, e, c.clock.Now())
	return ch, true, nil
}

func joinFlight() (any, error) {
	return nil, errFlightGone
}

// fetchFunc runs the fetcher and writes its outcome back into the entry.
func (c *Client[K, V]) fetchFunc(ctx context.Context, e *entry[K, V], seq uint64, fetcher types.Fetcher[K, V]) func() (any, error) {
	return func() (any, error) {
		defer c.wg.Done()

		start := time.Now()
		v, err := c.invoke(ctx, e.key, fetcher)
		c.log.Debug("fetch finished", "key", e.key, "took", time.Since(start), "err", err)

		sh := c.shards.For(e.key)
		sh.Mu.Lock()
		c.completeLocked(e, seq, v, err)
		sh.Mu.Unlock()

		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// invoke calls the fetcher once, inside the concurrency bound.
// Failures and panics come back as *FetchError.
func (c *Client[K, V]) invoke(ctx context.Context, key K, fetcher types.Fetcher[K, V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
		if err != nil {
			err = &FetchError{Key: fmt.Sprint(key), Err: err}
		}
	}()

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return v, err
		}
		defer c.sem.Release(1)
	}

	c.engine.Metrics.Fetch()
	c.log.Debug("fetch started", "key", key)
	return fetcher(ctx, key)
}

// completeLocked records the fetch outcome. Results of cancelled or
// superseded fetches, and of fetches whose entry is gone, are dropped.
func (c *Client[K, V]) completeLocked(e *entry[K, V], seq uint64, v V, err error) {
	if e.flightSeq != seq || !e.fetching() {
		return
	}
	e.flight = ""
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.removed || c.closed.Load() {
		e.state.Revert()
		return
	}

	again := e.refetchAfter
	e.refetchAfter = false

	now := c.clock.Now()
	if err != nil {
		e.state.Fail(err, now)
	} else {
		e.state.Resolve(v, now)
		c.persistLocked(e)
	}
	if again {
		e.state.Invalidate()
		if len(e.observers) > 0 && e.fetcher != nil {
			_, _, _ = c.ensureFetchLocked(e)
		}
	}
	c.notifyLocked(e, now)
	c.publishLocked(EventUpdated, e, now)
}

/*
Cancel stops the fetch attached to key.

The entry goes back to the state it had before the fetch started instead of
turning Errored. Callers waiting on the fetch receive a *FetchError wrapping
context.Canceled. It returns false when nothing was in flight.
*/
func (c *Client[K, V]) Cancel(key K) bool {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok || !e.fetching() {
		return false
	}
	e.cancel()
	e.cancel = nil
	e.flight = ""
	e.refetchAfter = false
	e.state.Revert()

	now := c.clock.Now()
	c.log.Debug("fetch cancelled", "key", key)
	c.notifyLocked(e, now)
	c.publishLocked(EventUpdated, e, now)
	return true
}

// await waits for a fetch result.
func await[V any](ctx context.Context, ch <-chan singleflight.Result) (V, error) {
	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
