// Package docqa answers questions about uploaded PDFs from the text around a page.
package docqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neonspire/docqa/internal/blob"
	"github.com/neonspire/docqa/internal/domain"
	"github.com/neonspire/docqa/internal/llm"
	"github.com/neonspire/docqa/internal/pdftext"
	"github.com/neonspire/docqa/internal/store"
)

var (
	// ErrNotPDF is returned for uploads whose name does not end in ".pdf".
	ErrNotPDF = errors.New("Only PDF files are allowed.") //nolint:staticcheck // shown to users verbatim
	// ErrInvalidDocOrPage is returned for unknown documents and out-of-range pages.
	ErrInvalidDocOrPage = errors.New("Invalid document ID or page number.") //nolint:staticcheck // shown to users verbatim
)

// BuildPrompt frames a question with its page context.
func BuildPrompt(context, question string) string {
	return "Use the following context from a PDF to answer the question.\n" +
		"Context:\n" + context + "\n\nQuestion: " + question + "\nAnswer:"
}

// Service stores documents and answers questions about them.
type Service struct {
	blobs     blob.Store
	extractor pdftext.Extractor
	docs      store.DocumentRepository
	completer llm.Completer
	now       func() time.Time
}

// NewService creates a document Q&A service.
func NewService(blobs blob.Store, extractor pdftext.Extractor, docs store.DocumentRepository, completer llm.Completer) *Service {
	return &Service{
		blobs:     blobs,
		extractor: extractor,
		docs:      docs,
		completer: completer,
		now:       time.Now,
	}
}

// Upload stores a PDF, extracts its pages and returns the new document.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*domain.Document, error) {
	if !strings.HasSuffix(filename, ".pdf") {
		return nil, ErrNotPDF
	}

	doc := &domain.Document{
		ID:        uuid.NewString(),
		FileName:  filename,
		CreatedAt: s.now(),
	}
	if err := s.blobs.Put(ctx, doc.ID, data); err != nil {
		return nil, fmt.Errorf("store pdf: %w", err)
	}

	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	doc.Pages = pages

	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	slog.Info("Document stored", "doc_id", doc.ID, "file_name", filename, "total_pages", doc.TotalPages(), "size", len(data))
	return doc, nil
}

// document loads a document, re-extracting its pages from the stored PDF when the
// page index has lost it. It returns nil for unknown documents.
func (s *Service) document(ctx context.Context, docID string) (*domain.Document, error) {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc != nil {
		return doc, nil
	}

	data, err := s.blobs.Get(ctx, docID)
	if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidID) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pdf: %w", err)
	}
	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	doc = &domain.Document{
		ID:        docID,
		FileName:  docID + ".pdf",
		Pages:     pages,
		CreatedAt: s.now(),
	}
	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	slog.Info("Document reindexed from stored pdf", "doc_id", docID, "total_pages", doc.TotalPages())
	return doc, nil
}

// Ask answers question using the zero-based page and its neighbours as context.
func (s *Service) Ask(ctx context.Context, docID, question string, page int) (string, error) {
	doc, err := s.document(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc == nil || !doc.HasPage(page) {
		return "", ErrInvalidDocOrPage
	}

	start := s.now()
	answer, err := s.completer.Complete(ctx, BuildPrompt(doc.PageWindow(page), question))
	if err != nil {
		return "", err
	}
	slog.Info("Question answered", "doc_id", docID, "page", page, "duration_ms", s.now().Sub(start).Milliseconds())
	return answer, nil
}
