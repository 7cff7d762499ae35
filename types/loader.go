package types

import (
	"context"
	"time"
)

// Fetcher is the per-query capability that produces the value for a key.
// It is invoked at most once per deduplicated fetch. It should return
// promptly once ctx is cancelled.
type Fetcher[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Record is the persisted form of a resolved entry.
type Record struct {
	Value     []byte
	UpdatedAt time.Time
}

// Persister is the contract between the cache and a durable store of resolved data.
type Persister interface {

	/*
		Load is called when an entry is created for a key that has no data yet.
		1. Cache creates the entry in memory
		2. Cache asks the Persister for a record in the background
		3. If found and the entry is still empty, the record seeds it
	*/
	Load(ctx context.Context, key string) (Record, bool, error)

	// Put stores the latest resolution. Called through a write policy.
	Put(ctx context.Context, key string, rec Record) error

	// Delete drops a key after removal or garbage collection.
	Delete(ctx context.Context, key string) error

	// Clear drops every record.
	Clear(ctx context.Context) error
}
