// Package persist holds the Persister implementations the query cache can
// mirror resolved data into.
package persist

import (
	"context"
	"sync"

	"github.com/krisalay/query-cache/types"
)

// Memory is a Persister backed by a map. It survives client restarts within one
// process, which is what tests and the demo need.
type Memory struct {
	mu   sync.RWMutex
	data map[string]types.Record
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]types.Record)}
}

func (m *Memory) Load(_ context.Context, key string) (types.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[key]
	return rec, ok, nil
}

func (m *Memory) Put(_ context.Context, key string, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	val := make([]byte, len(rec.Value))
	copy(val, rec.Value)
	m.data[key] = types.Record{Value: val, UpdatedAt: rec.UpdatedAt}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]types.Record)
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
