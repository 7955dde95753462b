// Package qaapi exposes the document Q&A service over multipart HTTP.
package qaapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/neonspire/docqa/internal/docqa"
	"github.com/neonspire/docqa/internal/domain"
)

const (
	uploadSucceeded    = "File uploaded successfully."
	internalErrMessage = "Internal server error"
)

// Documents is the document Q&A workflow.
type Documents interface {
	Upload(ctx context.Context, filename string, data []byte) (*domain.Document, error)
	Ask(ctx context.Context, docID, question string, page int) (string, error)
}

// Handler serves /upload/ and /ask/.
type Handler struct {
	docs           Documents
	validate       *validator.Validate
	maxUploadBytes int64
}

// NewHandler creates a Q&A handler.
func NewHandler(docs Documents, maxUploadBytes int64) *Handler {
	return &Handler{
		docs:           docs,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		maxUploadBytes: maxUploadBytes,
	}
}

type askForm struct {
	DocID      string `validate:"required"`
	Question   string `validate:"required"`
	PageNumber string `validate:"required,numeric"`
}

type uploadResponse struct {
	Message    string `json:"message"`
	DocID      string `json:"doc_id"`
	TotalPages int    `json:"total_pages"`
}

// RegisterRoutes registers the Q&A routes, with and without the trailing slash.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload/", h.Upload)
	r.Post("/upload", h.Upload)
	r.Post("/ask/", h.Ask)
	r.Post("/ask", h.Ask)
}

// Upload stores a PDF and reports its document id and page count.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "file: field required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	doc, err := h.docs.Upload(r.Context(), header.Filename, data)
	if errors.Is(err, docqa.ErrNotPDF) {
		writeError(w, http.StatusOK, err.Error())
		return
	}
	if err != nil {
		slog.Error("Upload failed", "error", err, "file_name", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   internalErrMessage,
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:    uploadSucceeded,
		DocID:      doc.ID,
		TotalPages: doc.TotalPages(),
	})
}

// Ask answers a question about a page of an uploaded document.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}

	form := askForm{
		DocID:      r.FormValue("doc_id"),
		Question:   r.FormValue("question"),
		PageNumber: strings.TrimSpace(r.FormValue("page_number")),
	}
	if err := h.validate.Struct(form); err != nil {
		writeError(w, http.StatusUnprocessableEntity, describe(err))
		return
	}
	page, err := strconv.Atoi(form.PageNumber)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "page_number: value is not a valid integer")
		return
	}

	answer, err := h.docs.Ask(r.Context(), form.DocID, form.Question, page)
	if errors.Is(err, docqa.ErrInvalidDocOrPage) {
		writeError(w, http.StatusOK, err.Error())
		return
	}
	if err != nil {
		slog.Error("Ask failed", "error", err, "doc_id", form.DocID, "page", page)
		writeJSON(w, http.StatusOK, map[string]string{
			"error":   internalErrMessage,
			"details": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

var fieldNames = map[string]string{
	"DocID":      "doc_id",
	"Question":   "question",
	"PageNumber": "page_number",
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.Field()]
		switch fe.Tag() {
		case "required":
			parts = append(parts, name+": field required")
		case "numeric":
			parts = append(parts, name+": value is not a valid integer")
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %s", name, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
