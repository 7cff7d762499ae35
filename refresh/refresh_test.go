package refresh

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTrackAndDue(t *testing.T) {
	s := NewSchedule[string]()

	assert.True(t, s.Track("a", time.Second, t0))
	assert.False(t, s.Track("b", 3*time.Second, t0), "a later key does not move the head")
	assert.True(t, s.Tracked("a"))
	assert.Equal(t, 2, s.Len())

	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Second), next)

	assert.Empty(t, s.Due(t0.Add(500*time.Millisecond)))
	assert.Equal(t, []string{"a"}, s.Due(t0.Add(time.Second)))

	// a is re-armed one interval after the tick.
	next, _ = s.Next()
	assert.Equal(t, t0.Add(2*time.Second), next)

	due := s.Due(t0.Add(3 * time.Second))
	sort.Strings(due)
	assert.Equal(t, []string{"a", "b"}, due)
}

func TestMissedTicksFireOnce(t *testing.T) {
	s := NewSchedule[int]()
	s.Track(1, time.Second, t0)

	assert.Equal(t, []int{1}, s.Due(t0.Add(time.Minute)))
	assert.Empty(t, s.Due(t0.Add(time.Minute)))
}

func TestRetrackKeepsOrChangesDueTime(t *testing.T) {
	s := NewSchedule[string]()
	s.Track("a", time.Second, t0)

	assert.False(t, s.Track("a", time.Second, t0.Add(500*time.Millisecond)), "same interval keeps the due time")
	next, _ := s.Next()
	assert.Equal(t, t0.Add(time.Second), next)

	assert.True(t, s.Track("a", 5*time.Second, t0))
	next, _ = s.Next()
	assert.Equal(t, t0.Add(5*time.Second), next)
}

func TestUntrack(t *testing.T) {
	s := NewSchedule[string]()
	s.Track("a", time.Second, t0)
	s.Track("b", 2*time.Second, t0)

	assert.True(t, s.Untrack("a"))
	assert.False(t, s.Untrack("a"))
	assert.Equal(t, []string{"b"}, s.Due(t0.Add(time.Hour)))

	assert.False(t, s.Track("c", 0, t0))
	assert.False(t, s.Tracked("c"))

	s.Clear()
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}
