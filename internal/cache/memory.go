package cache

import (
	"sync"
	"time"
)

// memoryStore is the in-process fallback used while the external cache is
// unreachable. It implements the same three operations but does not expire
// entries; TTLs are accepted and ignored. Everything here is lost on
// process exit, which is acceptable for a degraded mode that exists to keep
// requests succeeding rather than to preserve data.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data: make(map[string]string),
	}
}

func (m *memoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

func (m *memoryStore) Set(key, value string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *memoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}
