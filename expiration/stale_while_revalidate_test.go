package expiration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/krisalay/query-cache/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestIsStale(t *testing.T) {
	s := StaleWhileRevalidate{}
	timing := types.Timing{StaleTime: 10 * time.Second}
	resolved := types.Meta{HasData: true, UpdatedAt: t0}

	tests := []struct {
		name string
		meta types.Meta
		t    types.Timing
		now  time.Time
		want bool
	}{
		{"no data", types.Meta{}, timing, t0, true},
		{"fresh", resolved, timing, t0.Add(5 * time.Second), false},
		{"boundary", resolved, timing, t0.Add(10 * time.Second), true},
		{"stale", resolved, timing, t0.Add(11 * time.Second), true},
		{"zero stale time", resolved, types.Timing{}, t0, true},
		{"never", resolved, types.Timing{StaleTime: types.Never}, t0.Add(100 * 365 * 24 * time.Hour), false},
		{"invalidated", types.Meta{HasData: true, UpdatedAt: t0, Invalidated: true}, types.Timing{StaleTime: types.Never}, t0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsStale(tt.meta, tt.t, tt.now))
		})
	}
}

func TestIsCollectable(t *testing.T) {
	s := StaleWhileRevalidate{}
	timing := types.Timing{CacheTime: 30 * time.Second}

	resolved := types.Meta{HasData: true, CreatedAt: t0, UpdatedAt: t0.Add(10 * time.Second)}
	assert.False(t, s.IsCollectable(resolved, timing, t0.Add(39*time.Second)))
	assert.True(t, s.IsCollectable(resolved, timing, t0.Add(40*time.Second)))

	neverResolved := types.Meta{CreatedAt: t0}
	assert.True(t, s.IsCollectable(neverResolved, timing, t0.Add(30*time.Second)))

	fetching := types.Meta{CreatedAt: t0, Fetching: true}
	assert.False(t, s.IsCollectable(fetching, timing, t0.Add(time.Hour)))

	forever := types.Timing{CacheTime: types.Never}
	assert.False(t, s.IsCollectable(resolved, forever, t0.Add(100*365*24*time.Hour)))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 5*time.Second, Remaining(t0, t0.Add(5*time.Second), 10*time.Second))
	assert.Zero(t, Remaining(t0, t0.Add(time.Minute), 10*time.Second))
	assert.Equal(t, types.Never, Remaining(t0, t0, types.Never))
}
