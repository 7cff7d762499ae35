package persist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/query-cache/types"
)

func persisters(t *testing.T) map[string]types.Persister {
	t.Helper()

	file, err := NewFile(filepath.Join(t.TempDir(), "records"))
	require.NoError(t, err)

	db, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]types.Persister{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
}

func TestPersisterContract(t *testing.T) {
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, p := range persisters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := p.Load(ctx, `"missing"`)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.Put(ctx, `"user:1"`, types.Record{Value: []byte(`{"name":"alice"}`), UpdatedAt: updated}))
			require.NoError(t, p.Put(ctx, `"user:2"`, types.Record{Value: []byte(`2`), UpdatedAt: updated}))

			rec, ok, err := p.Load(ctx, `"user:1"`)
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"name":"alice"}`, string(rec.Value))
			assert.True(t, updated.Equal(rec.UpdatedAt), "got %s", rec.UpdatedAt)

			// Put overwrites.
			require.NoError(t, p.Put(ctx, `"user:1"`, types.Record{Value: []byte(`{"name":"bob"}`), UpdatedAt: updated.Add(time.Hour)}))
			rec, _, err = p.Load(ctx, `"user:1"`)
			require.NoError(t, err)
			assert.JSONEq(t, `{"name":"bob"}`, string(rec.Value))

			require.NoError(t, p.Delete(ctx, `"user:1"`))
			require.NoError(t, p.Delete(ctx, `"user:1"`), "deleting twice is fine")
			_, ok, err = p.Load(ctx, `"user:1"`)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.Clear(ctx))
			_, ok, err = p.Load(ctx, `"user:2"`)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	val := []byte("1")
	require.NoError(t, m.Put(context.Background(), "k", types.Record{Value: val}))
	val[0] = '9'

	rec, _, _ := m.Load(context.Background(), "k")
	assert.Equal(t, []byte("1"), rec.Value)
	assert.Equal(t, 1, m.Len())
}

func TestFileSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	f, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, f.Put(ctx, `["a",1]`, types.Record{Value: []byte(`"x"`)}))

	reopened, err := NewFile(dir)
	require.NoError(t, err)
	rec, ok, err := reopened.Load(ctx, `["a",1]`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"x"`, string(rec.Value))
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	db, err := NewSQLite(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, "k", types.Record{Value: []byte(`1`), UpdatedAt: time.Unix(100, 0)}))
	require.NoError(t, db.Close())

	db, err = NewSQLite(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	rec, ok, err := db.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), rec.UpdatedAt.Unix())
}
