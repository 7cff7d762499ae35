package querycache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/krisalay/query-cache/types"
)

// EventKind tells what happened to a cache entry.
type EventKind int

const (
	// EventCreated fires when an entry is added to the cache.
	EventCreated EventKind = iota

	// EventUpdated fires on every state transition of an entry.
	EventUpdated

	EventObserverAdded
	EventObserverRemoved

	// EventRemoved fires when an entry leaves the cache through Remove,
	// Clear or garbage collection.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventObserverAdded:
		return "observer_added"
	case EventObserverRemoved:
		return "observer_removed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event describes one change to the cache.
type Event[K comparable] struct {
	Kind      EventKind
	Key       K
	Status    types.Status
	Observers int
	At        time.Time
}

// CacheListener receives cache events. Events arrive one at a time, in the
// order the cache produced them, on a goroutine owned by the client.
type CacheListener[K comparable] func(Event[K])

type queuedEvent[K comparable] struct {
	ev Event[K]

	// target limits delivery to one subscriber; 0 means everyone.
	target uint64
}

type subscriber[K comparable] struct {
	id uint64
	fn CacheListener[K]
}

/*
eventBus delivers cache events off the shard locks.

Entries publish while holding their shard lock, so publishing only appends to
a queue. A single worker drains the queue, which keeps events in order and
keeps slow listeners from stalling the cache. The queue is unbounded; events
are never dropped.
*/
type eventBus[K comparable] struct {
	mu     sync.Mutex
	queue  []queuedEvent[K]
	subs   []subscriber[K]
	nextID uint64
	closed bool

	// active mirrors len(subs) so publishers can skip the lock when nobody listens.
	active atomic.Int32

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func newEventBus[K comparable]() *eventBus[K] {
	b := &eventBus[K]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

func (b *eventBus[K]) subscribe(fn CacheListener[K]) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, false
	}
	b.nextID++
	b.subs = append(b.subs, subscriber[K]{id: b.nextID, fn: fn})
	b.active.Store(int32(len(b.subs)))
	return b.nextID, true
}

func (b *eventBus[K]) unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			b.active.Store(int32(len(b.subs)))
			return true
		}
	}
	return false
}

func (b *eventBus[K]) publish(ev Event[K]) {
	if b.active.Load() == 0 {
		return
	}
	b.enqueue(queuedEvent[K]{ev: ev})
}

func (b *eventBus[K]) publishTo(id uint64, ev Event[K]) {
	b.enqueue(queuedEvent[K]{ev: ev, target: id})
}

func (b *eventBus[K]) enqueue(q queuedEvent[K]) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, q)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *eventBus[K]) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.signal:
			b.drain()
		case <-b.done:
			b.drain()
			return
		}
	}
}

func (b *eventBus[K]) drain() {
	for {
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		subs := append([]subscriber[K](nil), b.subs...)
		b.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, q := range batch {
			for _, s := range subs {
				if q.target == 0 || q.target == s.id {
					s.fn(q.ev)
				}
			}
		}
	}
}

// close delivers what is queued and stops the worker.
func (b *eventBus[K]) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
}
