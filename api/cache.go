package api

import (
	"context"
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
QueryClient defines the PUBLIC imperative API of the query cache.
This is a contract that guarantees certain behaviors, without exposing internals.
All of the details like (sharding, fetch deduplication, staleness, garbage collection,
interval refetch and persistence) are hidden behind this interface.

Subscriptions are created by the concrete client's Observe method and are
described by Subscription.
*/
type QueryClient[K comparable, V any] interface {

	/*
		Fetch returns the data for the given key.

		BEHAVIOR:
		-------------------
		1. If the key has data that is NOT stale:
		   - Return it immediately (hit)

		2. If the key has no data, or its data is stale or invalidated:
		   - Start the fetcher, or join the fetch already running
		   - Store the result
		   - Return it (miss)
	*/
	Fetch(ctx context.Context, key K, fetcher types.Fetcher[K, V], opts types.Options[V]) (V, error)

	/*
		Prefetch is Fetch without waiting. The result lands in the cache
		for the next consumer.
	*/
	Prefetch(key K, fetcher types.Fetcher[K, V], opts types.Options[V]) error

	/*
		Invalidate marks a key stale regardless of its stale time.

		BEHAVIOR:
		---------
		- Observed keys refetch right away
		- Unobserved keys refetch on the next subscription or Fetch
		- Returns false when the key has no entry
	*/
	Invalidate(key K) bool

	/*
		InvalidateMatching invalidates every key accepted by pred.
		Returns how many entries were invalidated.
	*/
	InvalidateMatching(pred func(K) bool) int

	/*
		SetData overwrites a key's data locally.

		BEHAVIOR:
		---------
		- Creates the entry if needed
		- Counts as a fresh resolution (staleness restarts)
		- Does NOT call the fetcher
	*/
	SetData(key K, value V)

	/*
		UpdateData applies fn to a key's current data.
		Returns false, without calling fn, if there is no data.
	*/
	UpdateData(key K, fn func(V) V) bool

	/*
		Remove deletes a key from the cache immediately.

		This operation is idempotent:
		- Removing a non-existing key is safe and returns false
	*/
	Remove(key K) bool

	/*
		Refetch fetches a key again in the background.

		RETURN VALUES:
		--------------
		nil          : a fetch is running (started or joined)
		not found    : the key has no entry
		no fetcher   : the entry was never registered with a fetcher
	*/
	Refetch(key K) error

	/*
		Cancel stops a running fetch. The entry returns to the state
		it had before the fetch started.
	*/
	Cancel(key K) bool

	/*
		Peek returns the read model of a key without side effects.

		WHY THIS IS IMPORTANT:
		----------------------
		- Debugging
		- Inspecting cache state from tools
	*/
	Peek(key K) (types.Snapshot[V], bool)

	/*
		Hydrate seeds a key with data resolved elsewhere at resolvedAt.
	*/
	Hydrate(key K, value V, resolvedAt time.Time)

	// Clear removes every entry.
	Clear()

	// Len returns the number of entries.
	Len() int

	/*
		Close gracefully shuts down the client.

		BEHAVIOR:
		---------
		- Cancels running fetches
		- Stops background goroutines
		- Flushes any pending write-back operations

		WHEN TO CALL:
		-------------
		- Application shutdown
		- Tests cleanup
	*/
	Close()
}

/*
Subscription is one consumer's live view of a query.
*/
type Subscription[V any] interface {

	// ID identifies the subscription.
	ID() string

	// Snapshot returns the current read model.
	Snapshot() types.Snapshot[V]

	// Updates delivers the latest read model after every change.
	Updates() <-chan types.Snapshot[V]

	// Refetch forces a fetch.
	Refetch() error

	// Close ends the subscription. The fetch in flight is not cancelled.
	Close()
}
