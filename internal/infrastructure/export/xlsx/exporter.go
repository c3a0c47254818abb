package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/readwise/internal/core/domain"
)

const (
	overviewSheet = "Overview"
	chaptersSheet = "Chapters"
)

var chapterHeader = []any{"Index", "Title", "Summary", "Key points", "Questions", "Analysis OK"}

// Exporter renders a book as a two-sheet workbook: the overview as label/value
// rows and one row per chapter.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(w io.Writer, book *domain.Book, chapters []domain.Chapter) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(0), overviewSheet); err != nil {
		return fmt.Errorf("rename overview sheet: %w", err)
	}
	if err := writeOverview(f, book); err != nil {
		return err
	}

	if _, err := f.NewSheet(chaptersSheet); err != nil {
		return fmt.Errorf("create chapters sheet: %w", err)
	}
	if err := writeChapters(f, chapters); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeOverview(f *excelize.File, book *domain.Book) error {
	overview := domain.Analysis{}.Normalize()
	if book.Overview != nil {
		overview = book.Overview.Normalize()
	}

	rows := [][]any{
		{"Title", book.Title},
		{"Status", string(book.Status)},
		{"Chapters", book.ChapterCount},
		{"Summary", overview.Summary},
		{"Key points", bulletList(overview.KeyPoints)},
		{"Questions", bulletList(overview.Questions)},
	}
	if book.Error != "" {
		rows = append(rows, []any{"Error", book.Error})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(overviewSheet, cell, &row); err != nil {
			return fmt.Errorf("write overview row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(overviewSheet, "A", "A", 14); err != nil {
		return fmt.Errorf("size overview columns: %w", err)
	}
	return f.SetColWidth(overviewSheet, "B", "B", 100)
}

func writeChapters(f *excelize.File, chapters []domain.Chapter) error {
	if err := f.SetSheetRow(chaptersSheet, "A1", &chapterHeader); err != nil {
		return fmt.Errorf("write chapters header: %w", err)
	}

	for i, chapter := range chapters {
		analysis := domain.Analysis{}.Normalize()
		if chapter.Analysis != nil {
			analysis = chapter.Analysis.Normalize()
		}
		row := []any{
			chapter.Index,
			chapter.Title,
			analysis.Summary,
			bulletList(analysis.KeyPoints),
			bulletList(analysis.Questions),
			analysis.OK,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(chaptersSheet, cell, &row); err != nil {
			return fmt.Errorf("write chapter %d: %w", chapter.Index, err)
		}
	}
	return f.SetColWidth(chaptersSheet, "B", "E", 50)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}
