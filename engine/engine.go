package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/krisalay/query-cache/expiration"
	"github.com/krisalay/query-cache/types"
	"github.com/krisalay/query-cache/writepolicy"
)

/*
CacheEngine is the "brain" of the query cache.
It is responsible for the "behavior" of the cache, NOT storage.
This acts as the policy layer.

It decides:
- When data is stale
- When an unobserved entry may be collected
- How resolved data is propagated to the persister
- Where a fresh entry can restore data from
- How metrics are recorded

It does NOT:
- Store entries
- Handle sharding
- Handle locking
- Run fetchers
*/
type CacheEngine struct {

	// Expiration controls when data is stale and when an entry may be collected.
	// If this is nil, StaleWhileRevalidate is used.
	Expiration expiration.Strategy

	// Store is where a newly created entry can restore its last persisted value from.
	// If nil, entries always start empty.
	Store types.Persister

	// WritePolicy decides what happens when an entry resolves or goes away.
	// Examples:
	// - Write-through: write to the persister immediately
	// - Write-back: write to the persister asynchronously later
	//
	// If nil, resolved data stays only in memory.
	WritePolicy writepolicy.WritePolicy

	// Metrics is how we keep track of what the cache is doing.
	// Hits, misses, fetches, dedups, invalidations, expirations, refreshes.
	Metrics types.Metrics

	Logger *slog.Logger
}

/*
NewCacheEngine creates a CacheEngine.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	store types.Persister,
	writePolicy writepolicy.WritePolicy,
	metrics types.Metrics,
	logger *slog.Logger,
) *CacheEngine {

	// Ensure strategy, metrics and logger are always non-nil
	// This avoids nil checks throughout the codebase
	if exp == nil {
		exp = expiration.StaleWhileRevalidate{}
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CacheEngine{
		Expiration:  exp,
		Store:       store,
		WritePolicy: writePolicy,
		Metrics:     metrics,
		Logger:      logger,
	}
}

// Default returns an engine with the default strategy and no persistence.
func Default() *CacheEngine {
	return NewCacheEngine(nil, nil, nil, nil, nil)
}

/*
IsStale checks whether an entry's data needs revalidation.

BEHAVIOR:
---------
- Delegates the decision to the configured Expiration strategy
- Uses the time supplied by the caller so tests can control the clock
*/
func (e *CacheEngine) IsStale(m types.Meta, t types.Timing, now time.Time) bool {
	return e.Expiration.IsStale(m, t, now)
}

// IsCollectable reports whether an unobserved entry has outlived its CacheTime.
func (e *CacheEngine) IsCollectable(m types.Meta, t types.Timing, now time.Time) bool {
	return e.Expiration.IsCollectable(m, t, now)
}

/*
OnRead is called every time a consumer subscribes to or fetches a key.

It records a hit when the data can be served as is, and a miss when a fetch is needed.
It returns true when the caller should start (or join) a fetch.
*/
func (e *CacheEngine) OnRead(m types.Meta, t types.Timing, now time.Time) bool {
	if e.IsStale(m, t, now) {
		e.Metrics.Miss()
		return true
	}
	e.Metrics.Hit()
	return false
}

/*
OnResolve is called whenever an entry gets new data.

Write propagation depends entirely on the configured WritePolicy.
*/
func (e *CacheEngine) OnResolve(ctx context.Context, key string, rec types.Record) {
	if e.WritePolicy != nil {
		e.WritePolicy.OnWrite(ctx, key, rec)
	}
}

// OnRemove is called when an entry is removed or collected.
func (e *CacheEngine) OnRemove(ctx context.Context, key string) {
	if e.WritePolicy != nil {
		e.WritePolicy.OnDelete(ctx, key)
	}
}

// OnClear is called when every entry is dropped.
func (e *CacheEngine) OnClear(ctx context.Context) {
	if e.WritePolicy != nil {
		e.WritePolicy.OnClear(ctx)
	}
}

// Persistent reports whether resolved data leaves memory at all.
func (e *CacheEngine) Persistent() bool {
	return e.Store != nil || e.WritePolicy != nil
}

/*
Restore is used when a new entry has no data yet.

Queued writes are flushed first so the record read is the latest one the
cache asked for.

Errors are logged and reported as "not found": a broken persister must
never keep the cache from fetching.
*/
func (e *CacheEngine) Restore(ctx context.Context, key string) (types.Record, bool) {
	if e.Store == nil {
		return types.Record{}, false
	}
	if e.WritePolicy != nil {
		if err := e.WritePolicy.Flush(ctx); err != nil {
			return types.Record{}, false
		}
	}
	rec, ok, err := e.Store.Load(ctx, key)
	if err != nil {
		e.Logger.Error("restore failed", "key", key, "err", err)
		return types.Record{}, false
	}
	return rec, ok
}

// Close flushes the write policy, then closes the store if it holds resources.
func (e *CacheEngine) Close() {
	if e.WritePolicy != nil {
		e.WritePolicy.Close()
	}
	if c, ok := e.Store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			e.Logger.Error("closing store failed", "err", err)
		}
	}
}
