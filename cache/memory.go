package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory snapshot store. It does not survive restarts;
// use the Redis store for that.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored snapshot, or nil if none has been set.
func (m *MemoryStore) Get(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snap == nil {
		return nil, nil
	}
	copied := *m.snap
	return &copied, nil
}

// Set replaces the stored snapshot.
func (m *MemoryStore) Set(ctx context.Context, snap *Snapshot) error {
	copied := *snap

	m.mu.Lock()
	m.snap = &copied
	m.mu.Unlock()
	return nil
}
