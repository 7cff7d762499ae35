package querycache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a client after Close.
	ErrClosed = errors.New("querycache: client closed")

	// ErrKeyNotFound is returned by Refetch for a key with no cache entry.
	ErrKeyNotFound = errors.New("querycache: key not found")

	// ErrNoFetcher is returned when a fetch is requested for an entry
	// that was never registered with a fetcher (for example one created by SetData).
	ErrNoFetcher = errors.New("querycache: no fetcher registered for key")

	// errFlightGone backs the fetch function of a joiner. It is never
	// observed: a joiner only joins while the flight is registered.
	errFlightGone = errors.New("querycache: flight already finished")
)

// FetchError wraps the failure of a fetcher. Every caller that shared the
// failing fetch receives the same *FetchError.
type FetchError struct {
	// Key is the query key, formatted with %v.
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("querycache: fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// panicError carries a value recovered from a panicking fetcher.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("fetcher panicked: %v", p.value)
}
