package types

import "time"

// Status is where an entry sits in its fetch lifecycle.
type Status int

const (
	// StatusAbsent means no fetch has resolved yet and none is running.
	StatusAbsent Status = iota

	// StatusLoading means a fetch is running. Data from an earlier
	// resolution, if any, is kept and still served.
	StatusLoading

	// StatusResolved means the last fetch (or manual write) succeeded.
	StatusResolved

	// StatusErrored means the last fetch failed.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusLoading:
		return "loading"
	case StatusResolved:
		return "resolved"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

/*
Entry holds the state of one query.

It is a plain state machine: it does no locking and knows nothing about
observers or fetchers. The client mutates it only while holding the lock
of the shard that owns the key, and only through the transition methods.

	Absent   --StartFetch--> Loading
	Loading  --Resolve-----> Resolved
	Loading  --Fail--------> Errored
	Resolved --StartFetch--> Loading   (Data kept)
	Errored  --StartFetch--> Loading   (Data kept)
	Loading  --Revert------> previous settled status (cancelled fetch)

Data is never dropped by a failed fetch; only a later Resolve or SetData
replaces it.
*/
type Entry[V any] struct {
	Status  Status
	Data    V
	HasData bool
	Err     error

	CreatedAt time.Time

	// UpdatedAt is the time of the last successful resolution.
	// Staleness and garbage collection are both measured from it.
	UpdatedAt time.Time
	ErroredAt time.Time

	// Invalidated forces the entry stale until the next resolution.
	Invalidated bool

	// Fetching is true while a fetch invocation is attached to the entry.
	Fetching bool

	settled Status
}

// NewEntry returns an Absent entry created at now.
func NewEntry[V any](now time.Time) *Entry[V] {
	return &Entry[V]{Status: StatusAbsent, CreatedAt: now}
}

// StartFetch moves the entry to Loading.
// It returns false, and changes nothing, when a fetch is already attached.
func (e *Entry[V]) StartFetch() bool {
	if e.Fetching {
		return false
	}
	e.settled = e.Status
	e.Status = StatusLoading
	e.Fetching = true
	return true
}

// Resolve records a successful fetch.
func (e *Entry[V]) Resolve(v V, now time.Time) {
	e.Fetching = false
	e.setData(v, now)
}

// Fail records a failed fetch. The last good Data stays in place.
func (e *Entry[V]) Fail(err error, now time.Time) {
	e.Fetching = false
	e.Status = StatusErrored
	e.Err = err
	e.ErroredAt = now
}

// Revert undoes StartFetch without recording an outcome.
// Used when a fetch is cancelled on purpose.
func (e *Entry[V]) Revert() {
	if !e.Fetching {
		return
	}
	e.Fetching = false
	e.Status = e.settled
}

// SetData overwrites the entry with a manually supplied value.
// A running fetch is left attached and will overwrite the value again when it lands.
func (e *Entry[V]) SetData(v V, now time.Time) {
	e.setData(v, now)
	if e.Fetching {
		e.settled = StatusResolved
		e.Status = StatusLoading
	}
}

func (e *Entry[V]) setData(v V, now time.Time) {
	e.Status = StatusResolved
	e.Data = v
	e.HasData = true
	e.Err = nil
	e.UpdatedAt = now
	e.Invalidated = false
	e.settled = StatusResolved
}

// Invalidate marks the entry stale. It reports whether the flag changed.
func (e *Entry[V]) Invalidate() bool {
	if e.Invalidated {
		return false
	}
	e.Invalidated = true
	return true
}

// Meta returns the type-free view of the entry used by expiration policies.
func (e *Entry[V]) Meta() Meta {
	return Meta{
		Status:      e.Status,
		HasData:     e.HasData,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		Invalidated: e.Invalidated,
		Fetching:    e.Fetching,
	}
}

// Meta carries the timestamps and flags of an entry without its value.
type Meta struct {
	Status      Status
	HasData     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Invalidated bool
	Fetching    bool
}

// Snapshot builds the consumer read model of the entry.
// stale is computed by the caller from the entry's options and the clock.
func (e *Entry[V]) Snapshot(stale bool, placeholder *V) Snapshot[V] {
	s := Snapshot[V]{
		Data:       e.Data,
		HasData:    e.HasData,
		Err:        e.Err,
		Status:     e.Status,
		IsLoading:  e.Fetching && !e.HasData,
		IsFetching: e.Fetching,
		IsStale:    stale,
		IsInvalid:  e.Invalidated,
		UpdatedAt:  e.UpdatedAt,
		ErroredAt:  e.ErroredAt,
	}
	if !e.HasData && placeholder != nil {
		s.Data = *placeholder
		s.HasData = true
		s.IsPlaceholder = true
	}
	return s
}
