package web

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonspire/docqa/internal/domain"
)

const (
	chatPlaceholder    = "Upload a PDF to simplify, summarize, and chat with your document."
	previewPlaceholder = "Upload a PDF to view at it"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func render(t *testing.T, view PageView) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, newRenderer(t).Render(&buf, view))
	return buf.String()
}

func TestRenderWithoutFileShowsPlaceholders(t *testing.T) {
	page := render(t, PageView{Session: domain.NewSession("s", time.Now())})

	assert.Contains(t, page, chatPlaceholder)
	assert.Contains(t, page, previewPlaceholder)
	assert.NotContains(t, page, "<iframe")
	assert.Contains(t, page, "NEON SPIRE")
	assert.Contains(t, page, "Upload a file")
	assert.Regexp(t, `id="send-button" type="submit" disabled`, page)
	assert.NotContains(t, page, `id="page-input"`)
}

func TestRenderWithFileShowsPreview(t *testing.T) {
	now := time.Now()
	s := domain.NewSession("s", now).Apply(domain.FileSelected{
		File: domain.SelectedFile{Name: "paper.pdf", ContentType: "application/pdf", Size: 10, SelectedAt: now},
		At:   now,
	})
	page := render(t, PageView{Session: s, PageRequired: true})

	assert.NotContains(t, page, chatPlaceholder)
	assert.NotContains(t, page, previewPlaceholder)
	assert.Contains(t, page, `<iframe src="/api/file?v=`)
	assert.Contains(t, page, "paper.pdf")
	assert.Contains(t, page, `id="page-input"`)
	// No document yet, so asking stays disabled.
	assert.Contains(t, page, `type="submit" disabled`)
}

func TestRenderSendEnabledWithDocument(t *testing.T) {
	s := domain.NewSession("s", time.Now()).Apply(domain.DocumentUploaded{DocID: "doc-1", At: time.Now()})
	page := render(t, PageView{Session: s})

	assert.Contains(t, page, `type="submit">Send</button>`)
}

func TestRenderSendDisabledWhileLoading(t *testing.T) {
	s := domain.NewSession("s", time.Now()).
		Apply(domain.DocumentUploaded{DocID: "doc-1", At: time.Now()}).
		Apply(domain.TurnSubmitted{Turn: domain.NewTurn("t1", "q", time.Now())})
	page := render(t, PageView{Session: s})

	assert.Contains(t, page, `type="submit" disabled>...</button>`)
}

func TestRenderChatBubblesInOrder(t *testing.T) {
	s := domain.NewSession("s", time.Now())
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("t%d", i)
		s = s.Apply(domain.TurnSubmitted{Turn: domain.NewTurn(id, fmt.Sprintf("question %d", i), time.Now())})
	}
	s = s.Apply(domain.TurnResolved{TurnID: "t2", Answer: "answer 2", At: time.Now()})

	html, err := newRenderer(t).RenderChat(s)
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(html, `class="question-bubble"`))
	assert.Equal(t, 3, strings.Count(html, `class="answer-bubble"`))

	q1 := strings.Index(html, "Q: question 1")
	q2 := strings.Index(html, "Q: question 2")
	q3 := strings.Index(html, "Q: question 3")
	a2 := strings.Index(html, "A: answer 2")
	require.True(t, q1 >= 0 && q2 >= 0 && q3 >= 0 && a2 >= 0)
	assert.Less(t, q1, q2)
	assert.Less(t, q2, a2)
	assert.Less(t, a2, q3)
	assert.Equal(t, 2, strings.Count(html, "A: "+domain.PlaceholderAnswer))
}

func TestRenderChatEscapesContent(t *testing.T) {
	s := domain.NewSession("s", time.Now()).
		Apply(domain.TurnSubmitted{Turn: domain.NewTurn("t1", "<script>alert(1)</script>", time.Now())})

	html, err := newRenderer(t).RenderChat(s)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestStaticHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/ask")
}

func TestScriptAlertsOnNetworkFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `alert("Upload failed: " + err.message)`)
	assert.Contains(t, body, `alert("Could not select file: " + err.message)`)
	assert.Contains(t, body, `alert("Could not send question: " + err.message)`)
}
