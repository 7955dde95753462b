// Package api provides the HTTP handlers of the document Q&A web client.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/neonspire/docqa/internal/domain"
	"github.com/neonspire/docqa/web"
)

// defaultMaxRequestBodySize bounds form requests that carry no file (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Sessions is the chat workflow used by the handlers.
type Sessions interface {
	Snapshot(ctx context.Context, sessionID string) (domain.Session, error)
	SelectFile(ctx context.Context, sessionID, name, contentType string, data []byte) (domain.Session, error)
	PreviewFile(ctx context.Context, sessionID string) (*domain.SelectedFile, []byte, error)
	Upload(ctx context.Context, sessionID string) (string, error)
	Ask(ctx context.Context, sessionID, question, pageInput string) (domain.Turn, error)
	PageRequired() bool
}

// PageRenderer renders the full page.
type PageRenderer interface {
	Render(w io.Writer, view web.PageView) error
}

// Handler provides common handler dependencies.
type Handler struct {
	sessions       Sessions
	pages          PageRenderer
	maxUploadBytes int64
}

// NewHandler creates a new Handler.
func NewHandler(sessions Sessions, pages PageRenderer, maxUploadBytes int64) *Handler {
	return &Handler{
		sessions:       sessions,
		pages:          pages,
		maxUploadBytes: maxUploadBytes,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
