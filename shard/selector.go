package shard

import "hash/maphash"

/*
This file decides HOW a query key is assigned to a shard.
If every key went to the same shard, that shard would become a bottleneck.
Shard selection is about:
- Load balancing
- Avoiding hot spots
*/

/*
Selector is the interface that decides which shard should handle a given key.
The cache does not care HOW this decision is made. It must only be stable:
the same key always maps to the same index.
*/
type Selector[K comparable] interface {
	Select(key K, n int) int
}

/*
HashSelector hashes any comparable key with hash/maphash.

Keys are not limited to strings, so we hash the key's in-memory value
instead of a textual form. The seed is random per process.
*/
type HashSelector[K comparable] struct {
	seed maphash.Seed
}

func NewHashSelector[K comparable]() *HashSelector[K] {
	return &HashSelector[K]{seed: maphash.MakeSeed()}
}

// Select returns the shard index for key.
func (h *HashSelector[K]) Select(key K, n int) int {
	return int(maphash.Comparable(h.seed, key) % uint64(n))
}

// Set is a fixed group of shards plus the selector that routes keys to them.
type Set[K comparable, E any] struct {
	shards   []*Shard[K, E]
	selector Selector[K]
}

// NewSet creates n shards. A nil selector defaults to HashSelector.
func NewSet[K comparable, E any](n int, selector Selector[K]) *Set[K, E] {
	if n <= 0 {
		n = 1
	}
	if selector == nil {
		selector = NewHashSelector[K]()
	}
	shards := make([]*Shard[K, E], n)
	for i := range shards {
		shards[i] = NewShard[K, E]()
	}
	return &Set[K, E]{shards: shards, selector: selector}
}

// For returns the shard that owns key.
func (s *Set[K, E]) For(key K) *Shard[K, E] {
	return s.shards[s.selector.Select(key, len(s.shards))]
}

// All returns every shard, in a stable order.
func (s *Set[K, E]) All() []*Shard[K, E] {
	return s.shards
}
