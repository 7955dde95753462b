// Package qaclient talks to the document Q&A backend over its multipart endpoints.
package qaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/neonspire/docqa/internal/domain"
)

const (
	uploadPath = "/upload/"
	askPath    = "/ask/"
)

// ErrMalformedResponse is returned when the backend body is not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed backend response")

// UploadResponse is the body returned by the upload endpoint.
type UploadResponse struct {
	DocID      string `json:"doc_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
}

// Notice returns the user-facing status line of an upload.
func (r *UploadResponse) Notice() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// AskRequest is a question about an uploaded document.
type AskRequest struct {
	DocID    string
	Question string
	// PageNumber is the zero-based page the question is about. Empty omits the field.
	PageNumber string
}

// AskResponse is the body returned by the ask endpoint.
type AskResponse struct {
	Answer  string `json:"answer,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Text returns the answer, falling back to the error and then to a fixed notice.
func (r *AskResponse) Text() string {
	switch {
	case r.Answer != "":
		return r.Answer
	case r.Error != "":
		return r.Error
	default:
		return domain.NoAnswerText
	}
}

// Client is a backend client. It never retries.
type Client struct {
	http *resty.Client
}

// New creates a client for the backend at baseURL. A zero timeout waits indefinitely.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

// Upload sends a file as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, r).
		Post(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}

	var out UploadResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask sends a question about a document.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	form := map[string]string{
		"doc_id":   req.DocID,
		"question": req.Question,
	}
	if req.PageNumber != "" {
		form["page_number"] = req.PageNumber
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(form).
		Post(askPath)
	if err != nil {
		return nil, fmt.Errorf("ask request failed: %w", err)
	}

	var out AskResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decode parses the body whatever the status code; error bodies carry an "error" field.
func decode(resp *resty.Response, v any) error {
	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body (status %d)", ErrMalformedResponse, resp.StatusCode())
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w (status %d): %v", ErrMalformedResponse, resp.StatusCode(), err)
	}
	return nil
}
