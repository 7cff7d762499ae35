package querycache

import (
	"time"
)

/*
The scheduler is one goroutine that owns every timed activity of the client:

- A ticker sweeps all shards every SweepInterval and collects entries that
  have no observers and have outlived their CacheTime
- A timer fires at the earliest interval refetch due time kept in the
  refresh.Schedule heap

Tracking a key that moves the earliest due time pokes the wake channel so the
timer is re-armed.
*/
func (c *Client[K, V]) runScheduler() {
	defer close(c.schedDone)

	ticker := time.NewTicker(c.settings.SweepInterval)
	defer ticker.Stop()

	timer := time.NewTimer(c.nextRefetchWait())
	defer timer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		case <-timer.C:
			c.refetchDue()
			timer.Reset(c.nextRefetchWait())
		case <-c.wake:
			timer.Reset(c.nextRefetchWait())
		}
	}
}

// nextRefetchWait returns how long the timer should sleep. With nothing
// tracked it sleeps one sweep interval and checks again.
func (c *Client[K, V]) nextRefetchWait() time.Duration {
	next, ok := c.schedule.Next()
	if !ok {
		return c.settings.SweepInterval
	}
	d := next.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	return min(d, c.settings.SweepInterval)
}

func (c *Client[K, V]) wakeScheduler() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client[K, V]) trackIntervalLocked(key K, interval time.Duration, now time.Time) {
	if c.schedule.Track(key, interval, now) {
		c.wakeScheduler()
	}
}

/*
sweep removes collectable entries.

An entry is collected when it has no observers, no fetch attached, and its
CacheTime has elapsed since it last resolved (or since it was created, if it
never resolved). The persisted record goes with it.
*/
func (c *Client[K, V]) sweep() int {
	now := c.clock.Now()
	collected := 0

	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		sh.Range(func(key K, e *entry[K, V]) bool {
			if len(e.observers) > 0 {
				return true
			}
			if !c.engine.IsCollectable(e.state.Meta(), e.timing, now) {
				return true
			}
			c.dropLocked(sh, e, now)
			c.engine.Metrics.Expire()
			collected++
			return true
		})
		sh.Mu.Unlock()
	}

	if collected > 0 {
		c.log.Debug("garbage collected entries", "count", collected)
	}
	return collected
}

/*
refetchDue starts the interval refetch of every key whose time has come.

Keys whose last observer left since they were scheduled are untracked here.
A refetch that finds a fetch already running joins nothing and does nothing.
*/
func (c *Client[K, V]) refetchDue() {
	for _, key := range c.schedule.Due(c.clock.Now()) {
		if c.limiter != nil {
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
		}

		sh := c.shards.For(key)
		sh.Mu.Lock()
		e, ok := sh.Get(key)
		if !ok || len(e.observers) == 0 {
			c.schedule.Untrack(key)
			sh.Mu.Unlock()
			continue
		}
		if !e.fetching() {
			if _, started, err := c.ensureFetchLocked(e); err == nil && started {
				c.engine.Metrics.Refresh()
				c.notifyLocked(e, c.clock.Now())
			}
		}
		sh.Mu.Unlock()
	}
}
