// Package extract turns uploaded PDF bytes into plain text for the
// analysis pipeline.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/paperlens/paper-analysis-service/internal/domain"
)

// MaxPages bounds how many pages are read. Analysis only needs the
// opening sections and the bibliography appears within this window for
// typical papers.
const MaxPages = 15

// Text extracts plain text from the first MaxPages pages of a PDF.
// Unreadable individual pages are skipped; a document yielding no text at
// all returns domain.ErrEmptyDocument.
func Text(data []byte) (text string, err error) {
	// The parser panics on some malformed files instead of returning an
	// error.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parsing PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parsing PDF: %w", err)
	}

	pages := reader.NumPage()
	if pages > MaxPages {
		pages = MaxPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString(" ")
	}

	text = strings.TrimSpace(sb.String())
	if text == "" {
		return "", domain.ErrEmptyDocument
	}
	return text, nil
}
