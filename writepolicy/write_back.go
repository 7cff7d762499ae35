package writepolicy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/krisalay/query-cache/types"
)

// This file implements the "write-back" policy.

type opKind int

const (
	opPut opKind = iota
	opDelete
	opClear
)

// writeReq represents one pending operation that needs to be sent to the persister.
type writeReq struct {
	ctx  context.Context
	kind opKind
	key  string
	rec  types.Record
}

/*
WriteBackPolicy manages asynchronous writes to the persister.

Pending operations are coalesced per key: only the latest operation of a key
is kept, in the position the key was first queued. A clear discards everything
queued before it. The persister therefore always ends in the state the cache
last asked for, even if intermediate puts never reach it.
*/
type WriteBackPolicy struct {

	// store is where resolved records end up (memory, files, SQLite).
	store types.Persister

	// buffer bounds how many keys may wait with a pending put.
	// Deletes and clears are never refused.
	buffer int

	log *slog.Logger

	mu      sync.Mutex
	pending map[string]writeReq
	order   []string
	clear   *writeReq
	waiters []chan struct{}
	closed  bool

	signal chan struct{}
	done   chan struct{}

	// wg is used to wait for the worker to finish during shutdown.
	wg sync.WaitGroup
}

// NewWriteBackPolicy creates a new write-back policy.
func NewWriteBackPolicy(store types.Persister, buffer int, log *slog.Logger) *WriteBackPolicy {
	if buffer <= 0 {
		buffer = 1
	}
	if log == nil {
		log = slog.Default()
	}
	w := &WriteBackPolicy{
		store:   store,
		buffer:  buffer,
		log:     log,
		pending: make(map[string]writeReq),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	// Start one background worker
	w.wg.Add(1)
	go w.worker()

	return w
}

// OnWrite queues a record, replacing whatever was queued for key.
// A put for a new key is DROPPED when buffer keys are already waiting.
// Blocking would stall the fetch that produced the value.
func (w *WriteBackPolicy) OnWrite(ctx context.Context, key string, rec types.Record) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if _, queued := w.pending[key]; !queued && len(w.pending) >= w.buffer {
		w.mu.Unlock()
		w.log.Warn("write-back queue full, dropping put", "key", key)
		return
	}
	w.queueLocked(writeReq{ctx: ctx, kind: opPut, key: key, rec: rec})
	w.mu.Unlock()
	w.wake()
}

// OnDelete queues a delete. It replaces a queued put of the same key and is never dropped.
func (w *WriteBackPolicy) OnDelete(ctx context.Context, key string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queueLocked(writeReq{ctx: ctx, kind: opDelete, key: key})
	w.mu.Unlock()
	w.wake()
}

// OnClear queues a clear of the whole store and forgets every operation queued before it.
func (w *WriteBackPolicy) OnClear(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending = make(map[string]writeReq)
	w.order = nil
	w.clear = &writeReq{ctx: ctx, kind: opClear}
	w.mu.Unlock()
	w.wake()
}

func (w *WriteBackPolicy) queueLocked(req writeReq) {
	if _, queued := w.pending[req.key]; !queued {
		w.order = append(w.order, req.key)
	}
	w.pending[req.key] = req
}

/*
Flush waits until every operation queued before the call has reached the persister.
The cache calls it before restoring a record, so a delete that is still queued
cannot bring removed data back.
*/
func (w *WriteBackPolicy) Flush(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	w.waiters = append(w.waiters, ch)
	w.mu.Unlock()
	w.wake()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WriteBackPolicy) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

/*
worker runs in the background and applies queued operations to the persister.

This is where eventual consistency happens.
*/
func (w *WriteBackPolicy) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.signal:
			w.drain()
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain applies batches until nothing is queued and nobody waits.
func (w *WriteBackPolicy) drain() {
	for {
		w.mu.Lock()
		wipe, order, pending, waiters := w.clear, w.order, w.pending, w.waiters
		w.clear, w.order, w.waiters = nil, nil, nil
		w.pending = make(map[string]writeReq)
		w.mu.Unlock()

		if wipe == nil && len(order) == 0 && len(waiters) == 0 {
			return
		}
		if wipe != nil {
			w.apply(*wipe)
		}
		for _, key := range order {
			w.apply(pending[key])
		}
		for _, ch := range waiters {
			close(ch)
		}
	}
}

func (w *WriteBackPolicy) apply(req writeReq) {
	// The request context may already be done by the time the
	// worker gets to it; the write must still happen.
	ctx := context.WithoutCancel(req.ctx)

	var err error
	switch req.kind {
	case opPut:
		err = w.store.Put(ctx, req.key, req.rec)
	case opDelete:
		err = w.store.Delete(ctx, req.key)
	case opClear:
		err = w.store.Clear(ctx)
	}
	if err != nil {
		w.log.Error("write-back failed", "key", req.key, "op", req.kind, "err", err)
	}
}

/*
Close shuts down the write-back policy gracefully.
------------------
1. Stop accepting operations
2. Wait for the worker to apply everything still queued

Without this, pending writes could be lost when the application shuts down.
Calling Close more than once is safe.
*/
func (w *WriteBackPolicy) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
}

func (k opKind) String() string {
	switch k {
	case opPut:
		return "put"
	case opDelete:
		return "delete"
	case opClear:
		return "clear"
	default:
		return "unknown"
	}
}
