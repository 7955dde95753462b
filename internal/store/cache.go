package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/neonspire/docqa/internal/domain"
)

// CachedDocuments keeps recently asked-about documents in memory in front of a DocumentRepository.
// Cached documents are shared; callers must not modify the returned pages.
type CachedDocuments struct {
	next  DocumentRepository
	cache *lru.Cache[string, *domain.Document]
}

var _ DocumentRepository = (*CachedDocuments)(nil)

// NewCachedDocuments wraps next with an LRU cache holding up to size documents.
func NewCachedDocuments(next DocumentRepository, size int) (*CachedDocuments, error) {
	cache, err := lru.New[string, *domain.Document](size)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}
	return &CachedDocuments{next: next, cache: cache}, nil
}

// SaveDocument writes through to the underlying repository.
func (c *CachedDocuments) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if err := c.next.SaveDocument(ctx, doc); err != nil {
		return err
	}
	c.cache.Add(doc.ID, doc)
	return nil
}

// GetDocument serves from the cache and falls back to the underlying repository.
func (c *CachedDocuments) GetDocument(ctx context.Context, docID string) (*domain.Document, error) {
	if doc, ok := c.cache.Get(docID); ok {
		return doc, nil
	}
	doc, err := c.next.GetDocument(ctx, docID)
	if err != nil || doc == nil {
		return doc, err
	}
	c.cache.Add(docID, doc)
	return doc, nil
}

// Len returns the number of cached documents.
func (c *CachedDocuments) Len() int {
	return c.cache.Len()
}
