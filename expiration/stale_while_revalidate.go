package expiration

import (
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
StaleWhileRevalidate is the default aging strategy.

Data is fresh for StaleTime after it resolves. Stale data is still served;
staleness only decides whether a read or a new subscription kicks off a
background refetch. An invalidated entry counts as resolved at the infinite
past, so it is stale whatever its StaleTime.
*/
type StaleWhileRevalidate struct{}

// IsStale checks whether the entry's data needs revalidation at this moment.
func (StaleWhileRevalidate) IsStale(m types.Meta, t types.Timing, now time.Time) bool {
	if !m.HasData || m.Invalidated {
		return true
	}
	return Elapsed(m.UpdatedAt, now, t.StaleTime)
}

/*
IsCollectable checks the retention clock.

- Entries with an attached fetch are never collected, so the result has somewhere to land
- The clock starts at the last resolution, or at creation for entries that never resolved
- A CacheTime of types.Never keeps the entry forever
*/
func (StaleWhileRevalidate) IsCollectable(m types.Meta, t types.Timing, now time.Time) bool {
	if m.Fetching {
		return false
	}
	since := m.UpdatedAt
	if since.IsZero() {
		since = m.CreatedAt
	}
	return Elapsed(since, now, t.CacheTime)
}
