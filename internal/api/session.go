package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/neonspire/docqa/internal/chat"
	"github.com/neonspire/docqa/internal/domain"
	"github.com/neonspire/docqa/internal/identity"
	"github.com/neonspire/docqa/web"
)

// uploadLocks prevents concurrent uploads for the same session.
var uploadLocks = newKeyedGuard()

// keyedGuard admits one holder per key. Released keys are forgotten.
type keyedGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedGuard() *keyedGuard {
	return &keyedGuard{held: make(map[string]struct{})}
}

// TryAcquire reports whether key was free and is now held by the caller.
func (g *keyedGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Release frees key.
func (g *keyedGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}

// sessionResponse is the JSON view of a session.
type sessionResponse struct {
	SessionID   string               `json:"session_id"`
	DocID       string               `json:"doc_id,omitempty"`
	File        *domain.SelectedFile `json:"file,omitempty"`
	Turns       []domain.Turn        `json:"turns"`
	Loading     bool                 `json:"loading"`
	HasDocument bool                 `json:"has_document"`
}

func newSessionResponse(s domain.Session) sessionResponse {
	turns := s.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	return sessionResponse{
		SessionID:   s.ID,
		DocID:       s.DocID,
		File:        s.File,
		Turns:       turns,
		Loading:     s.Loading(),
		HasDocument: s.HasDocument(),
	}
}

// RegisterRoutes registers the page and session routes. limit wraps the routes
// that reach the backend.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/", h.Page)
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Get("/config", h.GetConfig)
		r.Post("/file", h.SelectFile)
		r.Get("/file", h.GetFile)
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/upload", h.Upload)
			r.Post("/ask", h.Ask)
		})
	})
}

// Page renders the full page for the current session.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	session, err := h.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := h.pages.Render(&buf, web.PageView{Session: session, PageRequired: h.sessions.PageRequired()}); err != nil {
		slog.Error("Failed to render page", "error", err, "session_id", sessionID)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// GetSession returns the current session state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	session, err := h.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	JSON(w, http.StatusOK, newSessionResponse(session))
}

// GetConfig returns the client configuration for the page script.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"page_required":    h.sessions.PageRequired(),
		"max_upload_bytes": h.maxUploadBytes,
	})
}

// SelectFile stores the file chosen in the browser as the session's selection.
func (h *Handler) SelectFile(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+defaultMaxRequestBodySize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		Error(w, http.StatusBadRequest, "missing file")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	session, err := h.sessions.SelectFile(r.Context(), sessionID, header.Filename, contentType, data)
	if err != nil {
		slog.Error("Failed to select file", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	JSON(w, http.StatusOK, newSessionResponse(session))
}

// GetFile serves the selected file to the preview frame.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	file, data, err := h.sessions.PreviewFile(r.Context(), sessionID)
	if errors.Is(err, chat.ErrNoFile) {
		Error(w, http.StatusNotFound, "no file selected")
		return
	}
	if err != nil {
		slog.Error("Failed to load selected file", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load file")
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "private, no-cache")
	http.ServeContent(w, r, file.Name, file.SelectedAt, bytes.NewReader(data))
}

// Upload sends the selected file to the backend and returns the notice to show.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())

	if !uploadLocks.TryAcquire(sessionID) {
		slog.Warn("Upload already in progress", "session_id", sessionID)
		Error(w, http.StatusConflict, "upload_in_progress")
		return
	}
	defer uploadLocks.Release(sessionID)

	notice, err := h.sessions.Upload(r.Context(), sessionID)
	if errors.Is(err, chat.ErrNoFile) {
		Error(w, http.StatusBadRequest, "no_file")
		return
	}
	if err != nil {
		slog.Error("Upload failed", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "upload failed")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"alert": notice})
}

// Ask submits a question. The answer arrives over the live connection.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)

	if err := r.ParseMultipartForm(defaultMaxRequestBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		Error(w, http.StatusBadRequest, "invalid form")
		return
	}

	turn, err := h.sessions.Ask(r.Context(), sessionID, r.FormValue("question"), r.FormValue("page_number"))
	switch {
	case errors.Is(err, chat.ErrNotReady):
		Error(w, http.StatusBadRequest, "not_ready")
		return
	case errors.Is(err, chat.ErrInvalidPage):
		Error(w, http.StatusBadRequest, "invalid_page")
		return
	case err != nil:
		slog.Error("Failed to submit question", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to submit question")
		return
	}

	slog.Info("Question submitted", "session_id", sessionID, "turn_id", turn.ID, "question_length", len(turn.Question))
	JSON(w, http.StatusAccepted, map[string]interface{}{"turn": turn})
}
