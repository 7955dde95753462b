package store

import (
	"context"
	"sync"
	"time"

	"github.com/neonspire/docqa/internal/domain"
)

type storedFile struct {
	meta domain.SelectedFile
	data []byte
}

// MemoryStore implements Repository and DocumentRepository in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]domain.Session
	files     map[string]storedFile
	documents map[string]domain.Document
}

var (
	_ Repository         = (*MemoryStore)(nil)
	_ DocumentRepository = (*MemoryStore)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]domain.Session),
		files:     make(map[string]storedFile),
		documents: make(map[string]domain.Document),
	}
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := s.Clone()
	return &out, nil
}

// SaveSession creates or replaces a session snapshot.
func (m *MemoryStore) SaveSession(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session.Clone()
	return nil
}

// SaveFile stores the selected file bytes.
func (m *MemoryStore) SaveFile(_ context.Context, sessionID string, file domain.SelectedFile, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[sessionID] = storedFile{meta: file, data: append([]byte(nil), data...)}
	return nil
}

// GetFile returns the selected file of a session.
func (m *MemoryStore) GetFile(_ context.Context, sessionID string) (*domain.SelectedFile, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[sessionID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := f.meta
	return &meta, append([]byte(nil), f.data...), nil
}

// DeleteExpiredSessions removes sessions idle for longer than ttl.
func (m *MemoryStore) DeleteExpiredSessions(_ context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.LastSeenAt.Before(threshold) {
			ids = append(ids, id)
			delete(m.sessions, id)
			delete(m.files, id)
		}
	}
	return ids, nil
}

// SaveDocument creates or replaces a document.
func (m *MemoryStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	d.Pages = append([]string(nil), doc.Pages...)
	m.documents[doc.ID] = d
	return nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(_ context.Context, docID string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[docID]
	if !ok {
		return nil, nil
	}
	d.Pages = append([]string(nil), d.Pages...)
	return &d, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
