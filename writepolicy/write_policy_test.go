package writepolicy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/query-cache/logging"
	"github.com/krisalay/query-cache/types"
)

// recordingStore remembers every call in order.
type recordingStore struct {
	mu   sync.Mutex
	ops  []string
	data map[string]types.Record
	fail error

	// gate, when set, holds every Put until it is closed.
	// entered receives once a Put is waiting on the gate.
	gate    chan struct{}
	entered chan struct{}
}

func newRecordingStore() *recordingStore {
	return &recordingStore{data: make(map[string]types.Record)}
}

func (s *recordingStore) Load(_ context.Context, key string) (types.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	return rec, ok, nil
}

func (s *recordingStore) Put(_ context.Context, key string, rec types.Record) error {
	if s.gate != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "put "+key)
	s.data[key] = rec
	return s.fail
}

func (s *recordingStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete "+key)
	delete(s.data, key)
	return s.fail
}

func (s *recordingStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "clear")
	s.data = make(map[string]types.Record)
	return s.fail
}

func (s *recordingStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func rec(v string) types.Record {
	return types.Record{Value: []byte(v), UpdatedAt: time.Unix(0, 0)}
}

func newGatedStore() *recordingStore {
	s := newRecordingStore()
	s.gate = make(chan struct{})
	s.entered = make(chan struct{}, 1)
	return s
}

// busyWorker queues one put and waits until the worker is stuck writing it.
func busyWorker(t *testing.T, w *WriteBackPolicy, store *recordingStore) {
	t.Helper()
	w.OnWrite(context.Background(), "busy", rec("0"))
	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("worker never started writing")
	}
}

func TestWriteBackFlushesOnClose(t *testing.T) {
	store := newRecordingStore()
	w := NewWriteBackPolicy(store, 16, logging.Discard())

	ctx := context.Background()
	w.OnWrite(ctx, "a", rec("1"))
	w.OnWrite(ctx, "b", rec("2"))
	w.Close()

	for _, key := range []string{"a", "b"} {
		_, ok, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	// Writes after Close are ignored, and Close is idempotent.
	n := len(store.Ops())
	w.OnWrite(ctx, "d", rec("4"))
	w.Close()
	assert.Len(t, store.Ops(), n)
}

func TestWriteBackCoalescesPerKey(t *testing.T) {
	store := newGatedStore()
	w := NewWriteBackPolicy(store, 16, logging.Discard())
	defer w.Close()
	busyWorker(t, w, store)

	ctx := context.Background()
	w.OnWrite(ctx, "a", rec("1"))
	w.OnWrite(ctx, "b", rec("2"))
	w.OnDelete(ctx, "a")
	w.OnClear(ctx)
	w.OnWrite(ctx, "c", rec("3"))
	w.OnWrite(ctx, "c", rec("4"))

	close(store.gate)
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, []string{"put busy", "clear", "put c"}, store.Ops())
	got, ok, _ := store.Load(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, []byte("4"), got.Value)
}

func TestWriteBackNeverDropsDeletes(t *testing.T) {
	store := newGatedStore()
	w := NewWriteBackPolicy(store, 1, logging.Discard())
	defer w.Close()
	busyWorker(t, w, store)

	ctx := context.Background()
	w.OnWrite(ctx, "a", rec("1"))
	w.OnWrite(ctx, "b", rec("2")) // full: dropped
	w.OnWrite(ctx, "a", rec("3")) // already queued: replaces
	w.OnDelete(ctx, "busy")       // full, but deletes always queue

	close(store.gate)
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, []string{"put busy", "put a", "delete busy"}, store.Ops())
	_, ok, _ := store.Load(ctx, "busy")
	assert.False(t, ok)
}

func TestWriteBackFlushHonorsContext(t *testing.T) {
	store := newGatedStore()
	w := NewWriteBackPolicy(store, 4, logging.Discard())
	busyWorker(t, w, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)

	close(store.gate)
	require.NoError(t, w.Flush(context.Background()))
	w.Close()
	assert.NoError(t, w.Flush(context.Background()))
}

func TestWriteBackSurvivesCancelledContext(t *testing.T) {
	store := newRecordingStore()
	w := NewWriteBackPolicy(store, 4, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.OnWrite(ctx, "a", rec("1"))
	w.Close()

	_, ok, err := store.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteBackLogsStoreErrors(t *testing.T) {
	store := newRecordingStore()
	store.fail = errors.New("disk full")
	w := NewWriteBackPolicy(store, 4, logging.Discard())

	w.OnWrite(context.Background(), "a", rec("1"))
	w.Close()
	assert.Equal(t, []string{"put a"}, store.Ops())
}

func TestWriteThroughIsSynchronous(t *testing.T) {
	store := newRecordingStore()
	w := NewWriteThroughPolicy(store, logging.Discard())
	ctx := context.Background()

	w.OnWrite(ctx, "a", rec("1"))
	got, ok, _ := store.Load(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got.Value)

	w.OnDelete(ctx, "a")
	w.OnClear(ctx)
	require.NoError(t, w.Flush(ctx))
	w.Close()
	assert.Equal(t, []string{"put a", "delete a", "clear"}, store.Ops())
}
