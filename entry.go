package querycache

import (
	"context"

	"github.com/krisalay/query-cache/types"
)

/*
entry is everything the client keeps for one query key.

The state machine lives in types.Entry; this struct adds the bookkeeping
around it. All fields are guarded by the lock of the shard that owns key.
*/
type entry[K comparable, V any] struct {
	id  uint64
	key K

	// pkey is the persister key. Empty when persistence is off or the key
	// cannot be encoded.
	pkey string

	state types.Entry[V]

	// timing and fetcher come from the registrations seen so far.
	// registered is false for entries created by SetData, Hydrate or a restore
	// until a consumer registers the query.
	timing     types.Timing
	fetcher    types.Fetcher[K, V]
	registered bool

	observers map[*Observer[K, V]]struct{}

	// flight is the singleflight key of the attached fetch, empty when idle.
	// flightSeq grows with every fetch so a cancelled or superseded call can
	// recognize that its result no longer belongs to the entry.
	flight    string
	flightSeq uint64
	cancel    context.CancelFunc

	// refetchAfter is set by an invalidation that arrives while a fetch runs.
	refetchAfter bool

	// removed is set once the entry has left its shard.
	removed bool
}

func newEntry[K comparable, V any](id uint64, key K, st *types.Entry[V]) *entry[K, V] {
	return &entry[K, V]{
		id:        id,
		key:       key,
		state:     *st,
		timing:    types.Timing{}.Normalize(),
		observers: make(map[*Observer[K, V]]struct{}),
	}
}

func (e *entry[K, V]) fetching() bool {
	return e.flight != ""
}
