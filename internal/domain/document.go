package domain

import (
	"strings"
	"time"
)

// Document is a PDF known to the backend, split into per-page text.
type Document struct {
	ID        string    `json:"doc_id"`
	FileName  string    `json:"file_name"`
	Pages     []string  `json:"pages"`
	CreatedAt time.Time `json:"created_at"`
}

// TotalPages returns the number of extracted pages.
func (d *Document) TotalPages() int {
	return len(d.Pages)
}

// HasPage reports whether the zero-based index addresses a page of the document.
func (d *Document) HasPage(index int) bool {
	return index >= 0 && index < len(d.Pages)
}

// PageWindow returns the text of the page at index and its direct neighbours,
// joined by newlines. The window is clipped at the document bounds.
func (d *Document) PageWindow(index int) string {
	start := max(index-1, 0)
	end := min(index+2, len(d.Pages))
	if start >= end {
		return ""
	}
	return strings.Join(d.Pages[start:end], "\n")
}
