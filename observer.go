package querycache

import (
	"sync"

	"github.com/google/uuid"

	"github.com/krisalay/query-cache/types"
)

// ListenerID identifies a listener added with Observer.AddListener.
type ListenerID uint64

type listener[V any] struct {
	id ListenerID
	fn func(types.Snapshot[V])
}

/*
Observer is one consumer's subscription to a query.

It remembers the key it watches, never the entry itself: every read goes back
through the client, so an observer can outlive its entry (Remove) or move to
another key (SetKey).

Snapshots are pushed by the cache while it holds the entry's shard lock. The
push only stores the latest snapshot and wakes the observer's own goroutine,
which hands it to listeners and to the Updates channel. A consumer that falls
behind skips intermediate states and always ends on the latest one.
*/
type Observer[K comparable, V any] struct {
	id     uuid.UUID
	client *Client[K, V]

	fetcher types.Fetcher[K, V]
	opts    types.Options[V]

	// mu guards key and closed. It is taken before any shard lock.
	mu     sync.Mutex
	key    K
	closed bool

	pendMu     sync.Mutex
	pending    types.Snapshot[V]
	hasPending bool

	lmu          sync.Mutex
	listeners    []listener[V]
	nextListener ListenerID

	signal   chan struct{}
	updates  chan types.Snapshot[V]
	done     chan struct{}
	pumpDone chan struct{}
	stopOnce sync.Once
}

func newObserver[K comparable, V any](c *Client[K, V], key K, fetcher types.Fetcher[K, V], opts types.Options[V]) *Observer[K, V] {
	o := &Observer[K, V]{
		id:       uuid.New(),
		client:   c,
		fetcher:  fetcher,
		opts:     opts,
		key:      key,
		signal:   make(chan struct{}, 1),
		updates:  make(chan types.Snapshot[V], 1),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go o.pump()
	return o
}

// ID returns the observer's unique id.
func (o *Observer[K, V]) ID() string { return o.id.String() }

// Key returns the key currently observed.
func (o *Observer[K, V]) Key() K {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

/*
Snapshot returns the current read model, computed from the entry and the clock.

An observer that is not attached to the entry of its key, for example after
a failed attach, attaches again, which creates the entry and fetches it.
*/
func (o *Observer[K, V]) Snapshot() types.Snapshot[V] {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		snap, _ := o.client.Peek(o.key)
		return snap
	}
	return o.client.snapshotFor(o, o.key)
}

// Updates delivers snapshots as the entry changes. The channel holds at most
// the latest undelivered snapshot and is closed when the observer closes.
func (o *Observer[K, V]) Updates() <-chan types.Snapshot[V] {
	return o.updates
}

// AddListener registers fn to be called with every pushed snapshot.
// Listeners run on the observer's goroutine, one at a time, in registration order.
// A listener must not close its own observer.
func (o *Observer[K, V]) AddListener(fn func(types.Snapshot[V])) ListenerID {
	o.lmu.Lock()
	defer o.lmu.Unlock()
	o.nextListener++
	o.listeners = append(o.listeners, listener[V]{id: o.nextListener, fn: fn})
	return o.nextListener
}

// RemoveListener drops a listener. It reports whether the id was known.
func (o *Observer[K, V]) RemoveListener(id ListenerID) bool {
	o.lmu.Lock()
	defer o.lmu.Unlock()
	for i, l := range o.listeners {
		if l.id == id {
			o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Refetch forces a fetch of the observed key, joining one already in flight.
func (o *Observer[K, V]) Refetch() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.client.refetchFor(o, o.key)
}

// SetKey moves the observer to another key, with the same fetcher and options.
// The old entry is left to the garbage collector like any detach.
func (o *Observer[K, V]) SetKey(key K) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if key == o.key {
		return nil
	}
	o.client.detach(o, o.key)
	o.key = key
	return o.client.attach(o, key)
}

// Close detaches the observer. A fetch in flight is not cancelled.
// Calling Close more than once is safe.
func (o *Observer[K, V]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	key := o.key
	o.mu.Unlock()

	o.client.detach(o, key)
	o.client.forget(o)
	o.stop()
}

func (o *Observer[K, V]) placeholder() *V {
	return o.opts.DefaultValue
}

// push stores s as the latest snapshot. Called with the shard lock held.
func (o *Observer[K, V]) push(s types.Snapshot[V]) {
	o.pendMu.Lock()
	o.pending = s
	o.hasPending = true
	o.pendMu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *Observer[K, V]) pump() {
	defer close(o.pumpDone)

	for {
		select {
		case <-o.signal:
		case <-o.done:
			return
		}

		o.pendMu.Lock()
		s, ok := o.pending, o.hasPending
		o.hasPending = false
		o.pendMu.Unlock()
		if !ok {
			continue
		}

		o.lmu.Lock()
		ls := append([]listener[V](nil), o.listeners...)
		o.lmu.Unlock()
		for _, l := range ls {
			l.fn(s)
		}

		// Only this goroutine sends, so after dropping a stale value the send cannot block.
		select {
		case o.updates <- s:
		default:
			select {
			case <-o.updates:
			default:
			}
			o.updates <- s
		}
	}
}

// stop ends the pump and closes Updates.
func (o *Observer[K, V]) stop() {
	o.stopOnce.Do(func() {
		close(o.done)
		<-o.pumpDone
		close(o.updates)
	})
}
