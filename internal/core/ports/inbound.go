package ports

import (
	"context"
	"io"

	"github.com/kirillkom/readwise/internal/core/domain"
)

// BookUploader is the inbound contract for upload orchestration.
type BookUploader interface {
	Upload(ctx context.Context, ownerID, filename string, body io.Reader) (*domain.Book, error)
}

// BookLibrary is the inbound read/delete model for books and chapters.
type BookLibrary interface {
	GetBook(ctx context.Context, ownerID, bookID string) (*domain.Book, error)
	ListBooks(ctx context.Context, ownerID string) ([]domain.Book, error)
	ListChapters(ctx context.Context, ownerID, bookID string) ([]domain.Chapter, error)
	GetChapter(ctx context.Context, ownerID, bookID string, index int) (*domain.Chapter, error)
	DeleteBook(ctx context.Context, ownerID, bookID string) error
	ExportBook(ctx context.Context, ownerID, bookID string, w io.Writer) error
}

// EnrichmentRunner executes one enrichment run for an uploaded book.
type EnrichmentRunner interface {
	Run(ctx context.Context, job domain.EnrichmentJob) error
	RunByID(ctx context.Context, bookID string) error
}

// ChapterSegmenter splits raw extracted text into chapter units.
type ChapterSegmenter interface {
	Segment(raw string) []domain.ChapterUnit
}

// ChapterAnalyzer never fails: errors degrade into a placeholder analysis.
type ChapterAnalyzer interface {
	AnalyzeChapter(ctx context.Context, text, title string) domain.Analysis
}

// BookAggregator never fails: errors degrade into a placeholder overview.
type BookAggregator interface {
	AggregateBook(ctx context.Context, fullText, title string) domain.Analysis
}
