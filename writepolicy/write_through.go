package writepolicy

import (
	"context"
	"log/slog"

	"github.com/krisalay/query-cache/types"
)

/*
This file implements the "write-through" policy.

Whenever an entry resolves, the same record is immediately written to the persister.

So the flow is: Entry resolves → Persister write (synchronous)
*/

/*
It directly forwards every operation to the persister.
*/
type WriteThroughPolicy struct {

	// store is where records must be persisted immediately.
	store types.Persister

	log *slog.Logger
}

/*
NewWriteThroughPolicy creates a new write-through policy.
*/
func NewWriteThroughPolicy(store types.Persister, log *slog.Logger) *WriteThroughPolicy {
	if log == nil {
		log = slog.Default()
	}
	return &WriteThroughPolicy{store: store, log: log}
}

/*
OnWrite writes the record to the persister right away.
  - This call is synchronous
  - The resolution is not considered complete
    until the persister write finishes
  - If the persister is slow, fetch completion becomes slow
  - The cache calls it while holding the entry's shard lock, so readers
    of keys in the same shard wait for the persister too
*/
func (w *WriteThroughPolicy) OnWrite(ctx context.Context, key string, rec types.Record) {
	if err := w.store.Put(ctx, key, rec); err != nil {
		w.log.Error("write-through failed", "key", key, "op", "put", "err", err)
	}
}

func (w *WriteThroughPolicy) OnDelete(ctx context.Context, key string) {
	if err := w.store.Delete(ctx, key); err != nil {
		w.log.Error("write-through failed", "key", key, "op", "delete", "err", err)
	}
}

func (w *WriteThroughPolicy) OnClear(ctx context.Context) {
	if err := w.store.Clear(ctx); err != nil {
		w.log.Error("write-through failed", "op", "clear", "err", err)
	}
}

// Flush has nothing to wait for: every operation already reached the persister.
func (w *WriteThroughPolicy) Flush(context.Context) error { return nil }

/*
Close is required by the WritePolicy interface. Write-through does not use background workers,
so there is nothing to clean up.
*/
func (w *WriteThroughPolicy) Close() {}
