// Package web embeds the page templates and static assets and renders the
// document Q&A page on the server.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/neonspire/docqa/internal/domain"
)

//go:embed templates static
var assets embed.FS

// PageView is the data of the full page.
type PageView struct {
	Session      domain.Session
	PageRequired bool
}

// Renderer renders the page and its conversation fragment.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the full page.
func (r *Renderer) Render(w io.Writer, view PageView) error {
	return r.tmpl.ExecuteTemplate(w, "index.html", view)
}

// RenderChat renders the conversation area of a session.
func (r *Renderer) RenderChat(session domain.Session) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "chat", session); err != nil {
		return "", fmt.Errorf("render chat: %w", err)
	}
	return buf.String(), nil
}

// StaticHandler serves the embedded static/ directory. Mount it under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
