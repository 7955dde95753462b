// Package blob stores the raw bytes of uploaded PDFs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned when no object exists for a document.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidID is returned for document ids that cannot name an object.
	ErrInvalidID = errors.New("invalid document id")
)

// Store keeps one PDF per document id.
type Store interface {
	Put(ctx context.Context, docID string, data []byte) error
	Get(ctx context.Context, docID string) ([]byte, error)
}

var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// objectName returns "<doc_id>.pdf" for a safe document id.
func objectName(docID string) (string, error) {
	if !docIDPattern.MatchString(docID) {
		return "", fmt.Errorf("%w %q", ErrInvalidID, docID)
	}
	return docID + ".pdf", nil
}
