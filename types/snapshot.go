package types

import "time"

// Snapshot is what an observer sees of its query at one point in time.
type Snapshot[V any] struct {
	// Data is the last good value. When nothing has resolved yet it may
	// hold the query's DefaultValue, flagged by IsPlaceholder.
	Data    V
	HasData bool

	// Err is the error of the most recent failed fetch, kept next to Data.
	Err error

	Status Status

	// IsLoading is true while the first fetch runs and there is no data to show.
	IsLoading bool

	// IsFetching is true while any fetch runs, including background refetches.
	IsFetching bool

	IsStale       bool
	IsInvalid     bool
	IsPlaceholder bool

	UpdatedAt time.Time
	ErroredAt time.Time
}

// AbsentSnapshot is the view of a key with no cache entry.
func AbsentSnapshot[V any](placeholder *V) Snapshot[V] {
	s := Snapshot[V]{Status: StatusAbsent, IsStale: true}
	if placeholder != nil {
		s.Data = *placeholder
		s.HasData = true
		s.IsPlaceholder = true
	}
	return s
}
