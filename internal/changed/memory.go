package changed

import (
	"context"
	"sync"
)

// MemoryStore keeps fingerprints for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Fingerprint(_ context.Context, output string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.data[output]
	return fp, ok, nil
}

func (m *MemoryStore) Record(_ context.Context, output, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[output] = fingerprint
	return nil
}

func (m *MemoryStore) Close() error { return nil }
