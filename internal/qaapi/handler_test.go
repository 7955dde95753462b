package qaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonspire/docqa/internal/blob"
	"github.com/neonspire/docqa/internal/docqa"
	"github.com/neonspire/docqa/internal/qaclient"
	"github.com/neonspire/docqa/internal/store"
)

type staticExtractor []string

func (s staticExtractor) Extract(context.Context, []byte) ([]string, error) { return s, nil }

type echoCompleter struct{ err error }

func (e echoCompleter) Complete(_ context.Context, prompt string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "len=" + strings.Repeat("x", len(prompt)%5), nil
}

func newServer(t *testing.T, completer echoCompleter) *httptest.Server {
	t.Helper()
	svc := docqa.NewService(blob.NewMemoryStore(), staticExtractor{"alpha", "beta", "gamma"}, store.NewMemory(), completer)
	r := chi.NewRouter()
	NewHandler(svc, 1<<20).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postMultipart(t *testing.T, url string, fields map[string]string, file string) map[string]any {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != "" {
		part, err := mw.CreateFormFile("file", file)
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF-1.4"))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	out["_status"] = float64(resp.StatusCode)
	return out
}

func TestUploadSuccess(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	out := postMultipart(t, srv.URL+"/upload/", nil, "paper.pdf")

	assert.EqualValues(t, http.StatusOK, out["_status"])
	assert.Equal(t, "File uploaded successfully.", out["message"])
	assert.EqualValues(t, 3, out["total_pages"])
	assert.NotEmpty(t, out["doc_id"])
}

func TestUploadNotPDF(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	out := postMultipart(t, srv.URL+"/upload/", nil, "notes.txt")

	assert.EqualValues(t, http.StatusOK, out["_status"])
	assert.Equal(t, "Only PDF files are allowed.", out["error"])
	assert.NotContains(t, out, "doc_id")
}

func TestUploadMissingFile(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	out := postMultipart(t, srv.URL+"/upload/", map[string]string{"other": "x"}, "")
	assert.EqualValues(t, http.StatusUnprocessableEntity, out["_status"])
}

func TestAskMissingFields(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	out := postMultipart(t, srv.URL+"/ask/", map[string]string{"doc_id": "d"}, "")

	assert.EqualValues(t, http.StatusUnprocessableEntity, out["_status"])
	assert.Contains(t, out["error"], "question: field required")
	assert.Contains(t, out["error"], "page_number: field required")
}

func TestAskNonIntegerPage(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	out := postMultipart(t, srv.URL+"/ask/", map[string]string{"doc_id": "d", "question": "q", "page_number": "two"}, "")
	assert.EqualValues(t, http.StatusUnprocessableEntity, out["_status"])
}

func TestAskInvalidDocument(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	out := postMultipart(t, srv.URL+"/ask/", map[string]string{"doc_id": "nope", "question": "q", "page_number": "0"}, "")

	assert.EqualValues(t, http.StatusOK, out["_status"])
	assert.Equal(t, "Invalid document ID or page number.", out["error"])
}

func TestAskCompleterFailure(t *testing.T) {
	srv := newServer(t, echoCompleter{err: errors.New("model offline")})
	up := postMultipart(t, srv.URL+"/upload/", nil, "paper.pdf")
	out := postMultipart(t, srv.URL+"/ask/", map[string]string{
		"doc_id": up["doc_id"].(string), "question": "q", "page_number": "1",
	}, "")

	assert.EqualValues(t, http.StatusOK, out["_status"])
	assert.Equal(t, "Internal server error", out["error"])
	assert.Equal(t, "model offline", out["details"])
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	client := qaclient.New(srv.URL, 5*time.Second)
	ctx := context.Background()

	up, err := client.Upload(ctx, "paper.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.NotEmpty(t, up.DocID)
	assert.Equal(t, 3, up.TotalPages)

	resp, err := client.Ask(ctx, qaclient.AskRequest{DocID: up.DocID, Question: "what?", PageNumber: "1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Text(), "len="))

	resp, err = client.Ask(ctx, qaclient.AskRequest{DocID: up.DocID, Question: "what?", PageNumber: "7"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid document ID or page number.", resp.Text())

	resp, err = client.Ask(ctx, qaclient.AskRequest{DocID: up.DocID, Question: "what?", PageNumber: "-1"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid document ID or page number.", resp.Text())

	resp, err = client.Ask(ctx, qaclient.AskRequest{DocID: up.DocID, Question: "what?", PageNumber: "two"})
	require.NoError(t, err)
	assert.Equal(t, "page_number: value is not a valid integer", resp.Text())

	rejected, err := client.Upload(ctx, "notes.txt", strings.NewReader("hi"))
	require.NoError(t, err)
	assert.Empty(t, rejected.DocID)
	assert.Equal(t, "Only PDF files are allowed.", rejected.Notice())
}

func TestClientWithoutPageGets422Body(t *testing.T) {
	srv := newServer(t, echoCompleter{})
	resp, err := qaclient.New(srv.URL, 5*time.Second).Ask(context.Background(), qaclient.AskRequest{DocID: "d", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "page_number: field required", resp.Text())
}
