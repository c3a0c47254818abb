package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor reads the text layer of PDF uploads page by page. Unreadable
// documents and other formats yield empty text, which upload rejects as
// unparseable content.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		slog.Warn("unsupported_upload_format", "filename", filename)
		return "", nil
	}

	text, err := extractPDF(ctx, data)
	if err != nil {
		slog.Warn("pdf_extract_failed", "filename", filename, "error", err)
		return "", nil
	}
	return text, nil
}

func extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("pdf_page_skipped", "page", i, "error", err)
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
