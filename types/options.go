package types

import (
	"math"
	"time"
)

// Never is used as a StaleTime or CacheTime meaning "infinitely long".
const Never = time.Duration(math.MaxInt64)

// DefaultCacheTime applies when Options.CacheTime is left at zero.
const DefaultCacheTime = 5 * time.Minute

/*
Options configures one query registration.

Zero values are usable: data is stale as soon as it resolves, unobserved
entries are collected after DefaultCacheTime, and no interval refetch runs.
*/
type Options[V any] struct {
	// StaleTime is how long resolved data counts as fresh.
	// 0 means immediately stale, Never means never stale.
	StaleTime time.Duration

	// CacheTime is how long an entry without observers survives,
	// measured from its last resolution. Never disables collection.
	CacheTime time.Duration

	// RefetchInterval refetches the query periodically while it has observers.
	// 0 disables it.
	RefetchInterval time.Duration

	// DefaultValue is shown to observers before any fetch resolves.
	DefaultValue *V
}

// Timing is the type-free part of Options used by the scheduling code.
type Timing struct {
	StaleTime       time.Duration
	CacheTime       time.Duration
	RefetchInterval time.Duration
}

// Timing returns the normalized durations of o.
func (o Options[V]) Timing() Timing {
	t := Timing{
		StaleTime:       o.StaleTime,
		CacheTime:       o.CacheTime,
		RefetchInterval: o.RefetchInterval,
	}
	return t.Normalize()
}

// Normalize clamps negative durations and fills in the default cache time.
func (t Timing) Normalize() Timing {
	if t.StaleTime < 0 {
		t.StaleTime = 0
	}
	if t.CacheTime <= 0 {
		t.CacheTime = DefaultCacheTime
	}
	if t.RefetchInterval < 0 {
		t.RefetchInterval = 0
	}
	return t
}

/*
Merge combines the timing an entry already has with a new registration.

StaleTime and RefetchInterval follow the latest registration.
CacheTime keeps the longer of the two, so a short-lived consumer cannot
shorten how long another consumer's data is retained.
*/
func (t Timing) Merge(next Timing) Timing {
	out := next
	if t.CacheTime > next.CacheTime {
		out.CacheTime = t.CacheTime
	}
	return out
}
