// Package querycache is an asynchronous query cache: it deduplicates concurrent
// fetches of the same key, serves cached data while revalidating it in the
// background, refetches observed queries on an interval, and garbage collects
// entries nobody observes.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/refresh"
	"github.com/krisalay/query-cache/shard"
	"github.com/krisalay/query-cache/types"
)

const (
	DefaultShards        = 16
	DefaultSweepInterval = time.Second
)

// Settings configures a Client. The zero value is usable.
type Settings struct {
	// Shards is the number of independently locked partitions of the cache.
	Shards int

	// SweepInterval is how often the garbage collector looks for expired entries.
	SweepInterval time.Duration

	// MaxConcurrentFetches bounds how many fetchers run at once. 0 means unbounded.
	MaxConcurrentFetches int64

	// RefetchLimit and RefetchBurst rate limit interval refetches across all keys.
	// A zero RefetchLimit disables the limiter.
	RefetchLimit rate.Limit
	RefetchBurst int

	Clock  types.Clock
	Logger *slog.Logger
}

func (s Settings) withDefaults() Settings {
	if s.Shards <= 0 {
		s.Shards = DefaultShards
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = DefaultSweepInterval
	}
	if s.RefetchBurst <= 0 {
		s.RefetchBurst = 1
	}
	if s.Clock == nil {
		s.Clock = types.SystemClock{}
	}
	return s
}

/*
Client is the query cache.
This struct is the orchestrator that connects:
- shards holding the entries
- the engine (staleness, retention, persistence, metrics)
- the fetch tracker
- observers
- the scheduler
*/
type Client[K comparable, V any] struct {
	settings Settings
	engine   *engine.CacheEngine
	clock    types.Clock
	log      *slog.Logger

	// shards are the actual storage units. Each shard has its own lock.
	shards *shard.Set[K, *entry[K, V]]

	// flights makes every concurrent fetch of an entry share one fetcher call.
	flights singleflight.Group

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	schedule *refresh.Schedule[K]
	events   *eventBus[K]

	nextID atomic.Uint64

	obsMu     sync.Mutex
	observers map[*Observer[K, V]]struct{}

	// ctx is the parent of every fetch and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// wg tracks fetch and restore goroutines.
	wg        sync.WaitGroup
	wake      chan struct{}
	schedDone chan struct{}
}

/*
NewClient creates a client and starts its scheduler.
A nil engine means default staleness rules and no persistence.
Call Close to stop it.
*/
func NewClient[K comparable, V any](s Settings, eng *engine.CacheEngine) *Client[K, V] {
	s = s.withDefaults()
	if eng == nil {
		eng = engine.Default()
	}
	log := s.Logger
	if log == nil {
		log = eng.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client[K, V]{
		settings:  s,
		engine:    eng,
		clock:     s.Clock,
		log:       log,
		shards:    shard.NewSet[K, *entry[K, V]](s.Shards, nil),
		schedule:  refresh.NewSchedule[K](),
		events:    newEventBus[K](),
		observers: make(map[*Observer[K, V]]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		schedDone: make(chan struct{}),
	}
	if s.MaxConcurrentFetches > 0 {
		c.sem = semaphore.NewWeighted(s.MaxConcurrentFetches)
	}
	if s.RefetchLimit > 0 && s.RefetchLimit != rate.Inf {
		c.limiter = rate.NewLimiter(s.RefetchLimit, s.RefetchBurst)
	}

	go c.runScheduler()
	return c
}

// ================= OBSERVERS =================

/*
Observe registers a query and returns an observer of it.

BEHAVIOR:
---------
1. The entry for key is found or created (Absent)
2. The registration's options and fetcher are merged into the entry
3. If the data is absent, stale or invalidated, a fetch starts or is joined
4. The observer immediately receives the current snapshot

Observe never blocks on the fetcher.
*/
func (c *Client[K, V]) Observe(key K, fetcher types.Fetcher[K, V], opts types.Options[V]) (*Observer[K, V], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	o := newObserver(c, key, fetcher, opts)
	c.obsMu.Lock()
	c.observers[o] = struct{}{}
	c.obsMu.Unlock()

	if err := c.attach(o, key); err != nil {
		c.forget(o)
		o.stop()
		return nil, err
	}
	return o, nil
}

// Unregister detaches an observer. Same as o.Close().
func (c *Client[K, V]) Unregister(o *Observer[K, V]) {
	o.Close()
}

func (c *Client[K, V]) attach(o *Observer[K, V], key K) error {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	_, err := c.attachLocked(o, key, c.clock.Now())
	return err
}

// attachLocked adds o to the entry of key, creating the entry if needed,
// and starts a fetch when the data needs one.
func (c *Client[K, V]) attachLocked(o *Observer[K, V], key K, now time.Time) (*entry[K, V], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	e := c.getOrCreateLocked(key, now)
	c.registerLocked(e, o.fetcher, o.opts)

	e.observers[o] = struct{}{}
	c.publishLocked(EventObserverAdded, e, now)

	c.rescheduleLocked(e, now)

	if c.engine.OnRead(e.state.Meta(), e.timing, now) && e.fetcher != nil {
		if _, started, err := c.ensureFetchLocked(e); err == nil && started {
			c.notifyLocked(e, now)
			return e, nil
		}
	}
	o.push(c.snapshotLocked(e, o.placeholder(), now))
	return e, nil
}

func (c *Client[K, V]) detach(o *Observer[K, V], key K) {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok {
		return
	}
	if _, attached := e.observers[o]; !attached {
		return
	}
	delete(e.observers, o)
	now := c.clock.Now()
	c.publishLocked(EventObserverRemoved, e, now)
	c.rescheduleLocked(e, now)
}

// rescheduleLocked tracks the entry at the shortest refetch interval asked for
// by its attached observers, and untracks it when none asked for one.
func (c *Client[K, V]) rescheduleLocked(e *entry[K, V], now time.Time) {
	var interval time.Duration
	for o := range e.observers {
		if d := o.opts.RefetchInterval; d > 0 && (interval == 0 || d < interval) {
			interval = d
		}
	}
	e.timing.RefetchInterval = interval
	if interval > 0 {
		c.trackIntervalLocked(e.key, interval, now)
	} else {
		c.schedule.Untrack(e.key)
	}
}

func (c *Client[K, V]) forget(o *Observer[K, V]) {
	c.obsMu.Lock()
	delete(c.observers, o)
	c.obsMu.Unlock()
}

// snapshotFor is the live read of an observer. An observer whose entry
// was removed attaches again.
func (c *Client[K, V]) snapshotFor(o *Observer[K, V], key K) types.Snapshot[V] {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	now := c.clock.Now()
	e, ok := sh.Get(key)
	if ok {
		if _, attached := e.observers[o]; attached {
			return c.snapshotLocked(e, o.placeholder(), now)
		}
	}
	e, err := c.attachLocked(o, key, now)
	if err != nil {
		return types.AbsentSnapshot(o.placeholder())
	}
	return c.snapshotLocked(e, o.placeholder(), now)
}

func (c *Client[K, V]) refetchFor(o *Observer[K, V], key K) error {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	now := c.clock.Now()
	e, ok := sh.Get(key)
	if ok {
		_, ok = e.observers[o]
	}
	if !ok {
		var err error
		if e, err = c.attachLocked(o, key, now); err != nil {
			return err
		}
	}
	return c.refetchLocked(e, now)
}

func (c *Client[K, V]) refetchLocked(e *entry[K, V], now time.Time) error {
	if e.fetching() {
		return nil
	}
	_, started, err := c.ensureFetchLocked(e)
	if err != nil {
		return err
	}
	if started {
		c.notifyLocked(e, now)
	}
	return nil
}

// ================= ENTRIES =================

func (c *Client[K, V]) getOrCreateLocked(key K, now time.Time) *entry[K, V] {
	sh := c.shards.For(key)
	if e, ok := sh.Get(key); ok {
		return e
	}

	e := newEntry(c.nextID.Add(1), key, types.NewEntry[V](now))
	if c.engine.Persistent() {
		pkey, err := encodeKey(key)
		if err != nil {
			c.log.Warn("key cannot be persisted", "key", key, "err", err)
		} else {
			e.pkey = pkey
		}
	}
	sh.Put(key, e)
	c.publishLocked(EventCreated, e, now)

	if e.pkey != "" && c.engine.Store != nil && !c.closed.Load() {
		c.restore(e)
	}
	return e
}

/*
registerLocked merges one registration into the entry.

The first registration sets the timing. Later ones follow Timing.Merge:
StaleTime is taken from the latest registration, CacheTime keeps the longest.
RefetchInterval is not merged here; it belongs to each observer and is
recomputed by rescheduleLocked. A non-nil fetcher replaces the previous one.
*/
func (c *Client[K, V]) registerLocked(e *entry[K, V], fetcher types.Fetcher[K, V], opts types.Options[V]) {
	next := opts.Timing()
	interval := e.timing.RefetchInterval
	if !e.registered {
		e.timing = next
		e.registered = true
	} else {
		if next.StaleTime != e.timing.StaleTime {
			c.log.Warn("query registered with a different stale time, latest wins",
				"key", e.key,
				"stale_time", next.StaleTime,
			)
		}
		e.timing = e.timing.Merge(next)
	}
	e.timing.RefetchInterval = interval
	if fetcher != nil {
		e.fetcher = fetcher
	}
}

// restore loads the persisted record of a new entry in the background.
// The record only seeds the entry if nothing else has supplied data first.
func (c *Client[K, V]) restore(e *entry[K, V]) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		rec, ok := c.engine.Restore(c.ctx, e.pkey)
		if !ok {
			return
		}
		v, err := decodeValue[V](rec)
		if err != nil {
			c.log.Warn("persisted value cannot be decoded", "key", e.key, "err", err)
			return
		}

		sh := c.shards.For(e.key)
		sh.Mu.Lock()
		defer sh.Mu.Unlock()

		cur, found := sh.Get(e.key)
		if !found || cur != e || e.state.HasData || c.closed.Load() {
			return
		}
		e.state.SetData(v, rec.UpdatedAt)
		now := c.clock.Now()
		c.log.Debug("entry restored", "key", e.key, "updated_at", rec.UpdatedAt)
		c.notifyLocked(e, now)
		c.publishLocked(EventUpdated, e, now)
	}()
}

// dropLocked takes the entry out of its shard and tells everyone.
func (c *Client[K, V]) dropLocked(sh *shard.Shard[K, *entry[K, V]], e *entry[K, V], now time.Time) {
	sh.Delete(e.key)
	e.removed = true
	c.schedule.Untrack(e.key)
	c.publishLocked(EventRemoved, e, now)

	if e.pkey != "" {
		c.engine.OnRemove(context.WithoutCancel(c.ctx), e.pkey)
	}
	c.reattachLocked(e, now)
}

/*
reattachLocked moves the observers of a removed entry onto a fresh Absent
entry for the same key. They first see an Absent snapshot, then whatever the
fresh entry does: a fetch starts when a fetcher is registered.
*/
func (c *Client[K, V]) reattachLocked(e *entry[K, V], now time.Time) {
	for o := range e.observers {
		o.push(types.AbsentSnapshot(o.placeholder()))
	}
	if c.closed.Load() {
		return
	}
	for o := range e.observers {
		if _, err := c.attachLocked(o, e.key, now); err != nil {
			return
		}
	}
}

func (c *Client[K, V]) persistLocked(e *entry[K, V]) {
	if e.pkey == "" || c.engine.WritePolicy == nil {
		return
	}
	rec, err := encodeRecord(e.state.Data, e.state.UpdatedAt)
	if err != nil {
		c.log.Warn("value cannot be persisted", "key", e.key, "err", err)
		return
	}
	c.engine.OnResolve(context.WithoutCancel(c.ctx), e.pkey, rec)
}

func (c *Client[K, V]) snapshotLocked(e *entry[K, V], placeholder *V, now time.Time) types.Snapshot[V] {
	stale := c.engine.IsStale(e.state.Meta(), e.timing, now)
	return e.state.Snapshot(stale, placeholder)
}

// notifyLocked pushes the entry's current view to every attached observer.
func (c *Client[K, V]) notifyLocked(e *entry[K, V], now time.Time) {
	if len(e.observers) == 0 {
		return
	}
	stale := c.engine.IsStale(e.state.Meta(), e.timing, now)
	for o := range e.observers {
		o.push(e.state.Snapshot(stale, o.placeholder()))
	}
}

func (c *Client[K, V]) publishLocked(kind EventKind, e *entry[K, V], now time.Time) {
	c.events.publish(Event[K]{
		Kind:      kind,
		Key:       e.key,
		Status:    e.state.Status,
		Observers: len(e.observers),
		At:        now,
	})
}

// ================= MUTATIONS =================

/*
Invalidate marks the data of key stale regardless of its StaleTime.

BEHAVIOR:
---------
- If the entry has observers, a refetch starts (or the running fetch is joined)
- Without observers, the next subscription or Fetch refetches
- Observers are notified of the invalid flag before Invalidate returns

It returns false when the key has no entry.
*/
func (c *Client[K, V]) Invalidate(key K) bool {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok {
		return false
	}
	c.invalidateLocked(e, c.clock.Now())
	return true
}

// InvalidateMatching invalidates every entry whose key satisfies pred and
// returns how many it found. pred runs under a shard lock and must not call
// back into the client.
func (c *Client[K, V]) InvalidateMatching(pred func(K) bool) int {
	n := 0
	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		now := c.clock.Now()
		sh.Range(func(key K, e *entry[K, V]) bool {
			if pred(key) {
				c.invalidateLocked(e, now)
				n++
			}
			return true
		})
		sh.Mu.Unlock()
	}
	return n
}

// InvalidateAll invalidates every entry.
func (c *Client[K, V]) InvalidateAll() int {
	return c.InvalidateMatching(func(K) bool { return true })
}

// invalidateLocked marks the entry stale. A fetch already in flight may have
// read the data before the change that caused the invalidation, so the entry
// is invalidated again, and refetched, when that fetch lands.
func (c *Client[K, V]) invalidateLocked(e *entry[K, V], now time.Time) {
	if e.state.Invalidate() {
		c.engine.Metrics.Invalidate()
	}
	switch {
	case e.fetching():
		e.refetchAfter = true
	case len(e.observers) > 0 && e.fetcher != nil && !c.closed.Load():
		_, _, _ = c.ensureFetchLocked(e)
	}
	c.notifyLocked(e, now)
	c.publishLocked(EventUpdated, e, now)
}

/*
SetData overwrites the data of key as if a fetch had just resolved with value.

The entry is created if it does not exist. No fetch is started; a fetch already
in flight still lands afterwards and overwrites the value.
*/
func (c *Client[K, V]) SetData(key K, value V) {
	c.write(key, value, time.Time{})
}

/*
Hydrate seeds key with data resolved elsewhere at resolvedAt, for example by a
server render. Staleness is measured from resolvedAt.
*/
func (c *Client[K, V]) Hydrate(key K, value V, resolvedAt time.Time) {
	if resolvedAt.IsZero() {
		resolvedAt = c.clock.Now()
	}
	c.write(key, value, resolvedAt)
}

func (c *Client[K, V]) write(key K, value V, at time.Time) {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	if c.closed.Load() {
		return
	}

	now := c.clock.Now()
	if at.IsZero() {
		at = now
	}
	e := c.getOrCreateLocked(key, now)
	c.setDataLocked(e, value, at, now)
}

func (c *Client[K, V]) setDataLocked(e *entry[K, V], value V, at, now time.Time) {
	e.state.SetData(value, at)
	c.persistLocked(e)
	c.notifyLocked(e, now)
	c.publishLocked(EventUpdated, e, now)
}

// UpdateData replaces the data of key with fn(current). It returns false,
// without calling fn, when the key has no data.
func (c *Client[K, V]) UpdateData(key K, fn func(V) V) bool {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok || !e.state.HasData {
		return false
	}
	now := c.clock.Now()
	c.setDataLocked(e, fn(e.state.Data), now, now)
	return true
}

/*
Remove deletes the entry of key right away, without waiting for the garbage
collector. Its observers receive an Absent snapshot and move to a fresh
entry, which fetches again when they registered a fetcher. A fetch in flight
still completes for its callers but its result is discarded.
*/
func (c *Client[K, V]) Remove(key K) bool {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok {
		return false
	}
	c.dropLocked(sh, e, c.clock.Now())
	return true
}

/*
Clear removes every entry and every persisted record.

All shards stay locked until the observers of the dropped entries have moved
to fresh entries, so no write can land between the wipe and the persister clear.
*/
func (c *Client[K, V]) Clear() {
	c.lockAll()
	defer c.unlockAll()

	now := c.clock.Now()
	var observed []*entry[K, V]
	for _, sh := range c.shards.All() {
		for _, e := range sh.Reset() {
			e.removed = true
			c.schedule.Untrack(e.key)
			c.publishLocked(EventRemoved, e, now)
			if len(e.observers) > 0 {
				observed = append(observed, e)
			}
		}
	}
	c.engine.OnClear(context.WithoutCancel(c.ctx))
	for _, e := range observed {
		c.reattachLocked(e, now)
	}
}

// lockAll takes every shard lock, always in shard order.
func (c *Client[K, V]) lockAll() {
	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
	}
}

func (c *Client[K, V]) unlockAll() {
	for _, sh := range c.shards.All() {
		sh.Mu.Unlock()
	}
}

// ================= FETCHING =================

/*
Refetch fetches key again in the background, joining a fetch already in flight.

It returns ErrKeyNotFound when the key has no entry and ErrNoFetcher when the
entry was never registered with a fetcher.
*/
func (c *Client[K, V]) Refetch(key K) error {
	if c.closed.Load() {
		return ErrClosed
	}
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok {
		return ErrKeyNotFound
	}
	return c.refetchLocked(e, c.clock.Now())
}

/*
Fetch returns the data of key, fetching it only when needed.

BEHAVIOR:
---------
1. Fresh data in the cache is returned immediately (hit)
2. Otherwise the caller waits for the deduplicated fetch (miss)
3. A fetch error is returned as *FetchError; the cache keeps its last good data

Cancelling ctx stops the wait, not the fetch.
*/
func (c *Client[K, V]) Fetch(ctx context.Context, key K, fetcher types.Fetcher[K, V], opts types.Options[V]) (V, error) {
	ch, v, err := c.fetch(key, fetcher, opts)
	if err != nil || ch == nil {
		return v, err
	}
	return await[V](ctx, ch)
}

// Prefetch makes sure key is cached and fresh without waiting for it.
func (c *Client[K, V]) Prefetch(key K, fetcher types.Fetcher[K, V], opts types.Options[V]) error {
	_, _, err := c.fetch(key, fetcher, opts)
	return err
}

func (c *Client[K, V]) fetch(key K, fetcher types.Fetcher[K, V], opts types.Options[V]) (<-chan singleflight.Result, V, error) {
	var zero V
	if c.closed.Load() {
		return nil, zero, ErrClosed
	}

	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	now := c.clock.Now()
	e := c.getOrCreateLocked(key, now)
	c.registerLocked(e, fetcher, opts)

	if !c.engine.OnRead(e.state.Meta(), e.timing, now) {
		return nil, e.state.Data, nil
	}
	ch, started, err := c.ensureFetchLocked(e)
	if err != nil {
		return nil, zero, err
	}
	if started {
		c.notifyLocked(e, now)
	}
	return ch, zero, nil
}

// ================= READS =================

// Peek returns the read model of key without attaching, fetching or
// revalidating. The second result is false when the key has no entry.
func (c *Client[K, V]) Peek(key K) (types.Snapshot[V], bool) {
	sh := c.shards.For(key)
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	e, ok := sh.Get(key)
	if !ok {
		return types.AbsentSnapshot[V](nil), false
	}
	return c.snapshotLocked(e, nil, c.clock.Now()), true
}

// Len returns the number of entries.
func (c *Client[K, V]) Len() int {
	n := 0
	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		n += sh.Len()
		sh.Mu.Unlock()
	}
	return n
}

// EntryInfo is a summary of one entry, used for inspection.
type EntryInfo[K comparable] struct {
	Key        K
	Status     types.Status
	HasData    bool
	IsStale    bool
	IsFetching bool
	Observers  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Timing     types.Timing
}

// Entries returns a summary of every entry, in no particular order.
func (c *Client[K, V]) Entries() []EntryInfo[K] {
	var out []EntryInfo[K]
	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		now := c.clock.Now()
		sh.Range(func(key K, e *entry[K, V]) bool {
			m := e.state.Meta()
			out = append(out, EntryInfo[K]{
				Key:        key,
				Status:     m.Status,
				HasData:    m.HasData,
				IsStale:    c.engine.IsStale(m, e.timing, now),
				IsFetching: m.Fetching,
				Observers:  len(e.observers),
				CreatedAt:  m.CreatedAt,
				UpdatedAt:  m.UpdatedAt,
				Timing:     e.timing,
			})
			return true
		})
		sh.Mu.Unlock()
	}
	return out
}

// Dehydrated is the serializable form of one resolved entry.
type Dehydrated[K comparable, V any] struct {
	Key       K         `json:"key"`
	Data      V         `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dehydrate returns every entry that has data, ready to be shipped to another
// client and fed to Hydrate.
func (c *Client[K, V]) Dehydrate() []Dehydrated[K, V] {
	var out []Dehydrated[K, V]
	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		sh.Range(func(key K, e *entry[K, V]) bool {
			if e.state.HasData {
				out = append(out, Dehydrated[K, V]{Key: key, Data: e.state.Data, UpdatedAt: e.state.UpdatedAt})
			}
			return true
		})
		sh.Mu.Unlock()
	}
	return out
}

// ================= CACHE EVENTS =================

/*
RegisterCacheObserver subscribes fn to cache events. fn first receives an
EventCreated for every entry that already exists, then live events.

The subscription and the replay happen with every shard locked, so no live
event can slip in before the replay of its entry.
*/
func (c *Client[K, V]) RegisterCacheObserver(fn CacheListener[K]) (uint64, error) {
	c.lockAll()
	defer c.unlockAll()

	if c.closed.Load() {
		return 0, ErrClosed
	}
	id, ok := c.events.subscribe(fn)
	if !ok {
		return 0, ErrClosed
	}
	now := c.clock.Now()
	for _, sh := range c.shards.All() {
		sh.Range(func(key K, e *entry[K, V]) bool {
			c.events.publishTo(id, Event[K]{
				Kind:      EventCreated,
				Key:       key,
				Status:    e.state.Status,
				Observers: len(e.observers),
				At:        now,
			})
			return true
		})
	}
	return id, nil
}

// UnregisterCacheObserver stops delivery to a cache observer.
func (c *Client[K, V]) UnregisterCacheObserver(id uint64) bool {
	return c.events.unsubscribe(id)
}

// ================= SHUTDOWN =================

/*
Close gracefully shuts down the client.

BEHAVIOR:
---------
- Cancels every running fetch and waits for fetch goroutines to return
- Stops the scheduler
- Closes every observer (their Updates channels are closed)
- Delivers queued cache events
- Flushes pending write-back operations

Persisted records are kept so a new client can restore them.
Calling Close more than once is safe.
*/
func (c *Client[K, V]) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()

	// Nobody can start a fetch once they observe closed under a shard lock.
	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		sh.Mu.Unlock()
	}

	<-c.schedDone
	c.wg.Wait()

	for _, sh := range c.shards.All() {
		sh.Mu.Lock()
		for _, e := range sh.Reset() {
			e.removed = true
		}
		sh.Mu.Unlock()
	}
	c.schedule.Clear()

	c.obsMu.Lock()
	observers := make([]*Observer[K, V], 0, len(c.observers))
	for o := range c.observers {
		observers = append(observers, o)
	}
	c.observers = make(map[*Observer[K, V]]struct{})
	c.obsMu.Unlock()
	for _, o := range observers {
		o.stop()
	}

	c.events.close()
	c.engine.Close()
}

// Stats returns the engine's counters when it records to types.Counters.
func (c *Client[K, V]) Stats() (types.Stats, bool) {
	if ctr, ok := c.engine.Metrics.(*types.Counters); ok {
		return ctr.Stats(), true
	}
	return types.Stats{}, false
}
