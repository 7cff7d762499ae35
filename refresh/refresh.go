// This file defines the interval refetch schedule.
// It answers one question for the scheduler: "which keys are due for a background refetch now?"
// The goal of interval refetch is: "keep observed data fresh without anybody having to read it"

package refresh

import (
	"container/heap"
	"sync"
	"time"
)

/*
Schedule tracks the next refetch time of every key that has a refetch interval
and at least one observer.

The client tracks a key when an observer with an interval attaches and untracks
it when the last observer detaches; the scheduler goroutine pops due keys.
Keys are ordered in a min-heap by due time so finding the next wake-up is O(1).
*/
type Schedule[K comparable] struct {
	mu    sync.Mutex
	items map[K]*item[K]
	queue dueQueue[K]
}

// NewSchedule creates an empty schedule.
func NewSchedule[K comparable]() *Schedule[K] {
	return &Schedule[K]{items: make(map[K]*item[K])}
}

/*
Track starts (or updates) the interval refetch of key.

- A key already tracked with the same interval keeps its due time
- A changed interval re-arms the key at now + interval

It returns true when the earliest due time of the schedule changed,
which tells the scheduler to recompute its timer.
*/
func (s *Schedule[K]) Track(key K, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return s.Untrack(key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.nextLocked()

	if it, ok := s.items[key]; ok {
		if it.interval == interval {
			return false
		}
		it.interval = interval
		it.due = now.Add(interval)
		heap.Fix(&s.queue, it.index)
	} else {
		it := &item[K]{key: key, interval: interval, due: now.Add(interval)}
		s.items[key] = it
		heap.Push(&s.queue, it)
	}

	return !before.Equal(s.nextLocked())
}

// Untrack stops the interval refetch of key. It reports whether key was tracked.
func (s *Schedule[K]) Untrack(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, it.index)
	delete(s.items, key)
	return true
}

// Tracked reports whether key has an interval refetch scheduled.
func (s *Schedule[K]) Tracked(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Len returns the number of tracked keys.
func (s *Schedule[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Next returns the earliest due time, if any key is tracked.
func (s *Schedule[K]) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].due, true
}

/*
Due returns every key whose refetch time has come and re-arms each of them
one interval after now. Missed ticks are not replayed: a key that was due
several intervals ago fires once.
*/
func (s *Schedule[K]) Due(now time.Time) []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []K
	for len(s.queue) > 0 && !s.queue[0].due.After(now) {
		it := s.queue[0]
		due = append(due, it.key)
		it.due = now.Add(it.interval)
		heap.Fix(&s.queue, 0)
	}
	return due
}

// Clear untracks every key.
func (s *Schedule[K]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[K]*item[K])
	s.queue = nil
}

func (s *Schedule[K]) nextLocked() time.Time {
	if len(s.queue) == 0 {
		return time.Time{}
	}
	return s.queue[0].due
}
