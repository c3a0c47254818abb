package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/readwise/internal/core/domain"
)

// BookRepository persists books and their chapters.
type BookRepository interface {
	CreateBook(ctx context.Context, book *domain.Book) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context, ownerID string) ([]domain.Book, error)
	// CompleteBook and FailBook only apply while the book is still processing.
	CompleteBook(ctx context.Context, id string, overview domain.Analysis) error
	FailBook(ctx context.Context, id string, errMessage string) error
	DeleteBook(ctx context.Context, id string) error

	CreateChapter(ctx context.Context, chapter *domain.Chapter) error
	GetChapter(ctx context.Context, id string) (*domain.Chapter, error)
	ListChapters(ctx context.Context, bookID string) ([]domain.Chapter, error)
}

// ObjectStorage stores extracted source text.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TextExtractor returns plain text for a source document, or "" when nothing
// could be extracted.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// EnrichmentDispatcher schedules a job outside of the request cycle.
type EnrichmentDispatcher interface {
	Dispatch(ctx context.Context, job domain.EnrichmentJob) error
}

// AnalysisModel is the language-model black box returning structured analyses.
type AnalysisModel interface {
	AnalyzeChapter(ctx context.Context, title, text string) (domain.Analysis, error)
	AnalyzeBook(ctx context.Context, title, fullText string) (domain.Analysis, error)
}

// BookExporter renders a book with its chapters into a downloadable document.
type BookExporter interface {
	Export(w io.Writer, book *domain.Book, chapters []domain.Chapter) error
}

// EnrichmentObserver records pipeline telemetry.
type EnrichmentObserver interface {
	StartRun()
	FinishRun(outcome string, duration time.Duration)
	ChapterAnalyzed(ok bool)
}
