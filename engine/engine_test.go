package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/krisalay/query-cache/logging"
	"github.com/krisalay/query-cache/persist"
	"github.com/krisalay/query-cache/types"
	"github.com/krisalay/query-cache/writepolicy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestOnReadRecordsHitsAndMisses(t *testing.T) {
	counters := &types.Counters{}
	e := NewCacheEngine(nil, nil, nil, counters, logging.Discard())
	timing := types.Timing{StaleTime: time.Minute}

	assert.True(t, e.OnRead(types.Meta{}, timing, t0))
	assert.False(t, e.OnRead(types.Meta{HasData: true, UpdatedAt: t0}, timing, t0.Add(time.Second)))

	s := counters.Stats()
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Hits)
}

func TestDefaultsAreFilledIn(t *testing.T) {
	e := Default()
	assert.NotNil(t, e.Expiration)
	assert.IsType(t, types.NoopMetrics{}, e.Metrics)
	assert.NotNil(t, e.Logger)
	assert.False(t, e.Persistent())

	_, ok := e.Restore(context.Background(), "k")
	assert.False(t, ok)

	// No write policy: these are no-ops.
	e.OnResolve(context.Background(), "k", types.Record{})
	e.OnRemove(context.Background(), "k")
	e.OnClear(context.Background())
	e.Close()
}

type brokenStore struct{ persist.Memory }

func (brokenStore) Load(context.Context, string) (types.Record, bool, error) {
	return types.Record{}, false, errors.New("corrupt")
}

func TestRestoreTreatsErrorsAsMissing(t *testing.T) {
	e := NewCacheEngine(nil, &brokenStore{}, nil, nil, logging.Discard())
	_, ok := e.Restore(context.Background(), "k")
	assert.False(t, ok)
}

func TestResolveAndRemoveGoThroughWritePolicy(t *testing.T) {
	store := persist.NewMemory()
	e := NewCacheEngine(nil, store, writepolicy.NewWriteThroughPolicy(store, logging.Discard()), nil, logging.Discard())
	ctx := context.Background()

	e.OnResolve(ctx, "k", types.Record{Value: []byte("1"), UpdatedAt: t0})
	rec, ok := e.Restore(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), rec.Value)

	e.OnRemove(ctx, "k")
	_, ok = e.Restore(ctx, "k")
	assert.False(t, ok)

	e.OnResolve(ctx, "a", types.Record{Value: []byte("1")})
	e.OnClear(ctx)
	assert.Zero(t, store.Len())
	e.Close()
}
