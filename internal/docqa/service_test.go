package docqa

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonspire/docqa/internal/blob"
	"github.com/neonspire/docqa/internal/store"
)

type fakeExtractor struct {
	pages []string
	err   error
}

func (f fakeExtractor) Extract(context.Context, []byte) ([]string, error) {
	return f.pages, f.err
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func newTestService(pages []string, completer *fakeCompleter) (*Service, *blob.MemoryStore) {
	blobs := blob.NewMemoryStore()
	return NewService(blobs, fakeExtractor{pages: pages}, store.NewMemory(), completer), blobs
}

func TestUploadRejectsNonPDF(t *testing.T) {
	svc, _ := newTestService(nil, &fakeCompleter{})
	_, err := svc.Upload(context.Background(), "notes.txt", []byte("hi"))
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.Equal(t, "Only PDF files are allowed.", err.Error())

	_, err = svc.Upload(context.Background(), "paper.PDF", []byte("hi"))
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestUploadStoresDocument(t *testing.T) {
	svc, blobs := newTestService([]string{"one", "", "three"}, &fakeCompleter{})
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "paper.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Len(t, doc.ID, 36)
	assert.Equal(t, 3, doc.TotalPages())

	raw, err := blobs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw))

	other, err := svc.Upload(ctx, "paper.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.NotEqual(t, doc.ID, other.ID)
}

func TestUploadExtractionFailure(t *testing.T) {
	svc := NewService(blob.NewMemoryStore(), fakeExtractor{err: errors.New("bad xref")}, store.NewMemory(), &fakeCompleter{})
	_, err := svc.Upload(context.Background(), "paper.pdf", []byte("%PDF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad xref")
}

func TestAskBuildsPromptFromPageWindow(t *testing.T) {
	completer := &fakeCompleter{answer: "It is about cats."}
	svc, _ := newTestService([]string{"p0", "p1", "p2", "p3"}, completer)
	ctx := context.Background()
	doc, err := svc.Upload(ctx, "paper.pdf", []byte("%PDF"))
	require.NoError(t, err)

	answer, err := svc.Ask(ctx, doc.ID, "What is it about?", 2)
	require.NoError(t, err)
	assert.Equal(t, "It is about cats.", answer)

	require.Len(t, completer.prompts, 1)
	assert.Equal(t,
		"Use the following context from a PDF to answer the question.\nContext:\np1\np2\np3\n\nQuestion: What is it about?\nAnswer:",
		completer.prompts[0])
}

func TestAskEdgesOfDocument(t *testing.T) {
	completer := &fakeCompleter{answer: "ok"}
	svc, _ := newTestService([]string{"p0", "p1", "p2"}, completer)
	ctx := context.Background()
	doc, err := svc.Upload(ctx, "paper.pdf", []byte("%PDF"))
	require.NoError(t, err)

	_, err = svc.Ask(ctx, doc.ID, "q", 0)
	require.NoError(t, err)
	_, err = svc.Ask(ctx, doc.ID, "q", 2)
	require.NoError(t, err)

	assert.Contains(t, completer.prompts[0], "Context:\np0\np1\n\n")
	assert.Contains(t, completer.prompts[1], "Context:\np1\np2\n\n")
}

func TestAskInvalidDocOrPage(t *testing.T) {
	completer := &fakeCompleter{answer: "ok"}
	svc, _ := newTestService([]string{"p0"}, completer)
	ctx := context.Background()
	doc, err := svc.Upload(ctx, "paper.pdf", []byte("%PDF"))
	require.NoError(t, err)

	for _, tc := range []struct {
		docID string
		page  int
	}{
		{"unknown", 0},
		{doc.ID, -1},
		{doc.ID, 1},
	} {
		_, err := svc.Ask(ctx, tc.docID, "q", tc.page)
		assert.ErrorIs(t, err, ErrInvalidDocOrPage, "doc %s page %d", tc.docID, tc.page)
	}
	assert.Empty(t, completer.prompts)
}

func TestAskDocumentWithoutPages(t *testing.T) {
	svc, _ := newTestService([]string{}, &fakeCompleter{})
	ctx := context.Background()
	doc, err := svc.Upload(ctx, "empty.pdf", []byte("%PDF"))
	require.NoError(t, err)

	_, err = svc.Ask(ctx, doc.ID, "q", 0)
	assert.ErrorIs(t, err, ErrInvalidDocOrPage)
}

func TestAskCompleterFailure(t *testing.T) {
	svc, _ := newTestService([]string{"p0"}, &fakeCompleter{err: errors.New("model crashed")})
	ctx := context.Background()
	doc, err := svc.Upload(ctx, "paper.pdf", []byte("%PDF"))
	require.NoError(t, err)

	_, err = svc.Ask(ctx, doc.ID, "q", 0)
	assert.EqualError(t, err, "model crashed")
}

func TestAskReindexesDocumentFromStoredPDF(t *testing.T) {
	completer := &fakeCompleter{answer: "recovered"}
	blobs := blob.NewMemoryStore()
	docs := store.NewMemory()
	svc := NewService(blobs, fakeExtractor{pages: []string{"p0", "p1"}}, docs, completer)
	ctx := context.Background()

	const docID = "0b5c1f7e-2f40-4d7e-9a56-3d3c8e0f1a22"
	require.NoError(t, blobs.Put(ctx, docID, []byte("%PDF")))

	answer, err := svc.Ask(ctx, docID, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "p0\np1")

	doc, err := docs.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 2, doc.TotalPages())
}

func TestAskUnsafeDocIDIsInvalid(t *testing.T) {
	svc, _ := newTestService([]string{"p0"}, &fakeCompleter{})
	_, err := svc.Ask(context.Background(), "../etc/passwd", "q", 0)
	assert.ErrorIs(t, err, ErrInvalidDocOrPage)
}
