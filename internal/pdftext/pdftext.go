// Package pdftext extracts per-page plain text from PDF files.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidPDF is returned when the bytes cannot be parsed as a PDF.
var ErrInvalidPDF = errors.New("invalid pdf")

// Extractor turns a PDF into one text entry per page.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]string, error)
}

// PlainText extracts text with github.com/ledongthuc/pdf. Pages without content, or
// whose content cannot be decoded, yield an empty string so indexes match page numbers.
type PlainText struct{}

// Extract returns the text of every page in order.
func (PlainText) Extract(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, pageText(r.Page(i), i))
	}
	return pages, nil
}

func pageText(p pdf.Page, num int) string {
	if p.V.IsNull() || p.V.Key("Contents").IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		slog.Warn("Failed to extract page text", "page", num, "error", err)
		return ""
	}
	return text
}
