package writepolicy

import (
	"context"

	"github.com/krisalay/query-cache/types"
)

/*
This file defines what a "write policy" is.

Resolved query data can be mirrored into a Persister so that a restarted
process starts from the last known values instead of an empty cache.
Different systems have different needs:
- Some want the record on disk before the cache moves on (write-through)
- Some want fetch completion to stay fast (write-back)

Instead of hard-coding one behavior, we define an interface so we can plug in different strategies.
*/

/*
WritePolicy is the contract that all write policies must follow.
The cache engine does not care which policy is used. It simply calls these methods.
Calls for the same key arrive in the order the cache applied them.
*/
type WritePolicy interface {

	/*
		OnWrite is called whenever an entry resolves, or is set or hydrated by hand.
	*/
	OnWrite(ctx context.Context, key string, rec types.Record)

	/*
		OnDelete is called when an entry is removed or garbage collected.
	*/
	OnDelete(ctx context.Context, key string)

	/*
		OnClear is called when the whole cache is cleared.
	*/
	OnClear(ctx context.Context)

	/*
		Flush returns once every operation issued before the call has reached
		the persister. It is called before a record is restored.
	*/
	Flush(ctx context.Context) error

	/*
		Close is called when the cache is shutting down.
	*/
	Close()
}
