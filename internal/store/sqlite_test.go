package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/neonspire/docqa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSessionSurvivesReload(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Now()

	session := domain.NewSession("sess_a", now).
		Apply(domain.FileSelected{File: domain.SelectedFile{Name: "paper.pdf", Size: 3}, At: now}).
		Apply(domain.DocumentUploaded{DocID: "doc-1", At: now}).
		Apply(domain.TurnSubmitted{Turn: domain.NewTurn("t1", "(1) what?", now)})
	require.NoError(t, s.SaveSession(ctx, session))

	got, err := s.GetSession(ctx, "sess_a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "doc-1", got.DocID)
	require.NotNil(t, got.File)
	assert.Equal(t, "paper.pdf", got.File.Name)
	require.Len(t, got.Turns, 1)
	assert.Equal(t, domain.PlaceholderAnswer, got.Turns[0].Answer)
	assert.True(t, got.Loading())
}

func TestSQLiteMissingSessionIsNil(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteSelectedFileIsReplaced(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, _, err := s.GetFile(ctx, "sess_a")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.SaveFile(ctx, "sess_a", domain.SelectedFile{Name: "a.pdf", Size: 1}, []byte("a")))
	require.NoError(t, s.SaveFile(ctx, "sess_a", domain.SelectedFile{Name: "b.pdf", Size: 2}, []byte("bb")))

	meta, data, err := s.GetFile(ctx, "sess_a")
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", meta.Name)
	assert.Equal(t, []byte("bb"), data)
}

func TestSQLiteDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	stale := domain.NewSession("stale", time.Now().Add(-3*time.Hour))
	fresh := domain.NewSession("fresh", time.Now())
	require.NoError(t, s.SaveSession(ctx, stale))
	require.NoError(t, s.SaveSession(ctx, fresh))
	require.NoError(t, s.SaveFile(ctx, "stale", domain.SelectedFile{Name: "x.pdf"}, []byte("x")))

	ids, err := s.DeleteExpiredSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, ids)

	got, err := s.GetSession(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)
	_, _, err = s.GetFile(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = s.GetSession(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLiteDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	doc := &domain.Document{ID: "doc-1", FileName: "a.pdf", Pages: []string{"one", "", "three"}, CreatedAt: time.Now()}
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"one", "", "three"}, got.Pages)
	assert.Equal(t, 3, got.TotalPages())

	missing, err := s.GetDocument(ctx, "doc-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

type countingDocs struct {
	mu   sync.Mutex
	gets int
	*MemoryStore
}

func (c *countingDocs) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.MemoryStore.GetDocument(ctx, id)
}

func TestCachedDocumentsServesRepeatReadsFromMemory(t *testing.T) {
	ctx := context.Background()
	backing := &countingDocs{MemoryStore: NewMemory()}
	require.NoError(t, backing.MemoryStore.SaveDocument(ctx, &domain.Document{ID: "doc-1", Pages: []string{"p"}}))

	cached, err := NewCachedDocuments(backing, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		doc, err := cached.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		require.NotNil(t, doc)
	}
	assert.Equal(t, 1, backing.gets)

	doc, err := cached.GetDocument(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Equal(t, 1, cached.Len())
}

func TestWithRetryGivesUpOnPersistentBusy(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "op", func() error {
		calls++
		return errors.New("SQLITE_BUSY: database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, busyRetries, calls)

	calls = 0
	err = withRetry(context.Background(), "op", func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
