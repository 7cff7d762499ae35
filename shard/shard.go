package shard

import "sync"

/*
This file defines what a "Shard" is. A shard is a small, independent piece of the cache.
Instead of having: One big map and one big lock
We split the entries into many shards. Each shard:
- Holds some portion of the entries
- Has its own lock

Every state transition of an entry, and the observer notification that follows it,
happens while holding the lock of the shard that owns the key. Two keys that land in
different shards never contend.
*/
type Shard[K comparable, E any] struct {

	// Mu serializes every read and write of the entries in this shard.
	// Callers lock it around a whole operation, not around single map calls,
	// so a transition and its side effects are observed atomically.
	Mu sync.Mutex

	items map[K]E
}

func NewShard[K comparable, E any]() *Shard[K, E] {
	return &Shard[K, E]{items: make(map[K]E)}
}

// Get retrieves an entry by key. Mu must be held.
func (s *Shard[K, E]) Get(key K) (E, bool) {
	e, ok := s.items[key]
	return e, ok
}

// Put inserts or replaces an entry. Mu must be held.
func (s *Shard[K, E]) Put(key K, e E) {
	s.items[key] = e
}

// Delete removes an entry. Mu must be held.
func (s *Shard[K, E]) Delete(key K) {
	delete(s.items, key)
}

// Len returns how many entries are stored. Mu must be held.
func (s *Shard[K, E]) Len() int {
	return len(s.items)
}

// Range calls fn for every entry until fn returns false. Mu must be held.
// fn may delete the entry it is called with.
func (s *Shard[K, E]) Range(fn func(K, E) bool) {
	for k, e := range s.items {
		if !fn(k, e) {
			return
		}
	}
}

// Reset drops every entry and returns what was stored. Mu must be held.
func (s *Shard[K, E]) Reset() map[K]E {
	old := s.items
	s.items = make(map[K]E)
	return old
}
