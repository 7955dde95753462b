package qaclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "paper.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "File uploaded successfully.", "doc_id": "doc-1", "total_pages": 4,
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Upload(context.Background(), "paper.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", resp.DocID)
	assert.Equal(t, 4, resp.TotalPages)
	assert.Equal(t, "File uploaded successfully.", resp.Notice())
}

func TestUploadErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Only PDF files are allowed."}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Upload(context.Background(), "notes.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Empty(t, resp.DocID)
	assert.Equal(t, "Only PDF files are allowed.", resp.Notice())
}

func TestAskSendsFormFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ask/", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "doc-1", r.FormValue("doc_id"))
		assert.Equal(t, "what is it?", r.FormValue("question"))
		assert.Equal(t, "2", r.FormValue("page_number"))
		_, _ = w.Write([]byte(`{"answer":"a thing"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Ask(context.Background(), AskRequest{
		DocID: "doc-1", Question: "what is it?", PageNumber: "2",
	})
	require.NoError(t, err)
	assert.Equal(t, "a thing", resp.Text())
}

func TestAskOmitsPageWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["page_number"]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).Ask(context.Background(), AskRequest{DocID: "doc-1", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "No answer received", resp.Text())
}

func TestAskTextFallsBackToError(t *testing.T) {
	resp := &AskResponse{Error: "Invalid document ID or page number."}
	assert.Equal(t, "Invalid document ID or page number.", resp.Text())
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Ask(context.Background(), AskRequest{DocID: "d", Question: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), "502")
}

func TestClientDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Upload(context.Background(), "a.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransportErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Ask(context.Background(), AskRequest{DocID: "d", Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ask request failed")
}
