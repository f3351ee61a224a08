package sink

import (
	"context"
	"sync"
)

// MemoryOffsetStore is an in-process OffsetStore, adapted from the
// teacher's core.MemoryStore (core/memory_store.go): same RWMutex-guarded
// map shape, trimmed of the TTL/expiry and framework-metrics-registry
// machinery that store carried for its generic key/value cache role, since
// a cursor has no expiry — it lives for the lifetime of the endpoint.
type MemoryOffsetStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

func NewMemoryOffsetStore() *MemoryOffsetStore {
	return &MemoryOffsetStore{cursors: make(map[string]string)}
}

func (m *MemoryOffsetStore) Load(ctx context.Context, partitionKey string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cursor, ok := m.cursors[partitionKey]
	return cursor, ok, nil
}

func (m *MemoryOffsetStore) Save(ctx context.Context, partitionKey string, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[partitionKey] = cursor
	return nil
}
