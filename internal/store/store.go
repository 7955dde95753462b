// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/neonspire/docqa/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists browser session state for the web client.
type Repository interface {
	// GetSession retrieves a session by ID. Returns nil, nil when it does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SaveSession creates or replaces a session snapshot.
	SaveSession(ctx context.Context, session domain.Session) error

	// SaveFile stores the bytes of the file selected in a session, replacing any previous one.
	SaveFile(ctx context.Context, sessionID string, file domain.SelectedFile, data []byte) error

	// GetFile returns the selected file of a session, or ErrNotFound.
	GetFile(ctx context.Context, sessionID string) (*domain.SelectedFile, []byte, error)

	// DeleteExpiredSessions removes sessions idle for longer than ttl and returns their IDs.
	DeleteExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// DocumentRepository persists extracted documents for the backend.
type DocumentRepository interface {
	// SaveDocument creates or replaces a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID. Returns nil, nil when it does not exist.
	GetDocument(ctx context.Context, docID string) (*domain.Document, error)
}
