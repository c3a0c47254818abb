package xlsx

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/readwise/internal/core/domain"
)

func TestExportWritesOverviewAndChapters(t *testing.T) {
	book := &domain.Book{
		ID:           "b1",
		Title:        "Moby Dick",
		Status:       domain.StatusCompleted,
		ChapterCount: 2,
		Overview: &domain.Analysis{
			Summary:   "A whale hunt.",
			KeyPoints: []string{"obsession", "the sea"},
			Questions: []string{"Why Ahab?"},
			OK:        true,
		},
	}
	chapters := []domain.Chapter{
		{Index: 0, Title: "Loomings", Analysis: &domain.Analysis{Summary: "Ishmael goes to sea.", KeyPoints: []string{"restlessness"}, OK: true}},
		{Index: 1, Title: "The Carpet-Bag", Analysis: &domain.Analysis{Summary: "Analysis unavailable: timeout", OK: false}},
	}

	var buf bytes.Buffer
	if err := NewExporter().Export(&buf, book, chapters); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	overview, err := f.GetRows(overviewSheet)
	if err != nil {
		t.Fatalf("GetRows(overview) error = %v", err)
	}
	if overview[0][1] != "Moby Dick" || overview[3][1] != "A whale hunt." {
		t.Fatalf("unexpected overview rows: %v", overview)
	}
	if overview[4][1] != "- obsession\n- the sea" {
		t.Fatalf("unexpected key points cell: %q", overview[4][1])
	}

	rows, err := f.GetRows(chaptersSheet)
	if err != nil {
		t.Fatalf("GetRows(chapters) error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 chapter rows, got %d", len(rows))
	}
	if rows[0][0] != "Index" || rows[1][1] != "Loomings" || rows[2][2] != "Analysis unavailable: timeout" {
		t.Fatalf("unexpected chapter rows: %v", rows)
	}
}

func TestExportProcessingBookWithoutOverview(t *testing.T) {
	book := &domain.Book{Title: "Draft", Status: domain.StatusProcessing, ChapterCount: 3}

	var buf bytes.Buffer
	if err := NewExporter().Export(&buf, book, nil); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}
