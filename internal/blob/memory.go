package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps PDFs in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, docID string, data []byte) error {
	if _, err := objectName(docID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[docID] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, docID string) ([]byte, error) {
	if _, err := objectName(docID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
