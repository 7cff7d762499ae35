package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEntryLifecycle(t *testing.T) {
	e := NewEntry[string](t0)
	assert.Equal(t, StatusAbsent, e.Status)

	require.True(t, e.StartFetch())
	assert.False(t, e.StartFetch(), "one fetch at a time")
	assert.Equal(t, StatusLoading, e.Status)

	e.Resolve("v1", t0.Add(time.Second))
	assert.Equal(t, StatusResolved, e.Status)
	assert.Equal(t, "v1", e.Data)
	assert.Equal(t, t0.Add(time.Second), e.UpdatedAt)
	assert.False(t, e.Fetching)
}

func TestFailKeepsData(t *testing.T) {
	e := NewEntry[int](t0)
	e.StartFetch()
	e.Resolve(1, t0)

	e.StartFetch()
	snap := e.Snapshot(true, nil)
	assert.True(t, snap.IsFetching)
	assert.False(t, snap.IsLoading)

	boom := errors.New("boom")
	e.Fail(boom, t0.Add(time.Minute))
	assert.Equal(t, StatusErrored, e.Status)
	assert.Equal(t, 1, e.Data)
	assert.True(t, e.HasData)
	assert.Equal(t, boom, e.Err)
	assert.Equal(t, t0, e.UpdatedAt, "a failure does not refresh the data")
	assert.Equal(t, t0.Add(time.Minute), e.ErroredAt)
}

func TestRevertRestoresSettledStatus(t *testing.T) {
	e := NewEntry[int](t0)
	e.StartFetch()
	e.Revert()
	assert.Equal(t, StatusAbsent, e.Status)
	assert.False(t, e.Fetching)

	e.StartFetch()
	e.Fail(errors.New("x"), t0)
	e.StartFetch()
	e.Revert()
	assert.Equal(t, StatusErrored, e.Status)
}

func TestSetDataDuringFetch(t *testing.T) {
	e := NewEntry[int](t0)
	e.StartFetch()
	e.SetData(5, t0)

	assert.Equal(t, StatusLoading, e.Status, "the fetch is still attached")
	assert.Equal(t, 5, e.Data)

	e.Revert()
	assert.Equal(t, StatusResolved, e.Status)
}

func TestInvalidateClearsOnResolve(t *testing.T) {
	e := NewEntry[int](t0)
	e.SetData(1, t0)

	assert.True(t, e.Invalidate())
	assert.False(t, e.Invalidate())
	assert.True(t, e.Meta().Invalidated)

	e.StartFetch()
	e.Resolve(2, t0)
	assert.False(t, e.Invalidated)
}

func TestSnapshotPlaceholder(t *testing.T) {
	def := "placeholder"
	e := NewEntry[string](t0)

	snap := e.Snapshot(true, &def)
	assert.Equal(t, "placeholder", snap.Data)
	assert.True(t, snap.IsPlaceholder)

	e.SetData("real", t0)
	snap = e.Snapshot(false, &def)
	assert.Equal(t, "real", snap.Data)
	assert.False(t, snap.IsPlaceholder)

	absent := AbsentSnapshot(&def)
	assert.Equal(t, StatusAbsent, absent.Status)
	assert.True(t, absent.IsPlaceholder)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "resolved", StatusResolved.String())
	assert.Equal(t, "unknown", Status(42).String())
}
