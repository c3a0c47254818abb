package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
)

type LibraryUseCase struct {
	repo     ports.BookRepository
	storage  ports.ObjectStorage
	exporter ports.BookExporter
	runs     *RunRegistry
}

func NewLibraryUseCase(
	repo ports.BookRepository,
	storage ports.ObjectStorage,
	exporter ports.BookExporter,
	runs *RunRegistry,
) *LibraryUseCase {
	return &LibraryUseCase{
		repo:     repo,
		storage:  storage,
		exporter: exporter,
		runs:     runs,
	}
}

func (uc *LibraryUseCase) GetBook(ctx context.Context, ownerID, bookID string) (*domain.Book, error) {
	book, err := uc.repo.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	// Books of other owners are reported as missing rather than forbidden.
	if book.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrBookNotFound, "get book", fmt.Errorf("id=%s", bookID))
	}
	return book, nil
}

func (uc *LibraryUseCase) ListBooks(ctx context.Context, ownerID string) ([]domain.Book, error) {
	return uc.repo.ListBooks(ctx, ownerID)
}

func (uc *LibraryUseCase) ListChapters(ctx context.Context, ownerID, bookID string) ([]domain.Chapter, error) {
	if _, err := uc.GetBook(ctx, ownerID, bookID); err != nil {
		return nil, err
	}
	return uc.repo.ListChapters(ctx, bookID)
}

func (uc *LibraryUseCase) GetChapter(ctx context.Context, ownerID, bookID string, index int) (*domain.Chapter, error) {
	if index < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get chapter", fmt.Errorf("negative index %d", index))
	}
	if _, err := uc.GetBook(ctx, ownerID, bookID); err != nil {
		return nil, err
	}
	return uc.repo.GetChapter(ctx, domain.ChapterID(bookID, index))
}

// DeleteBook stops an in-flight enrichment of the book, then removes the book
// with all its chapters and its stored source text.
func (uc *LibraryUseCase) DeleteBook(ctx context.Context, ownerID, bookID string) error {
	if _, err := uc.GetBook(ctx, ownerID, bookID); err != nil {
		return err
	}
	if uc.runs.Cancel(bookID) {
		slog.Info("enrichment_cancel_requested", "book_id", bookID)
	}
	if err := uc.repo.DeleteBook(ctx, bookID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if err := uc.storage.Delete(ctx, SourceTextKey(bookID)); err != nil {
		slog.Warn("source_text_delete_failed", "book_id", bookID, "error", err)
	}
	return nil
}

func (uc *LibraryUseCase) ExportBook(ctx context.Context, ownerID, bookID string, w io.Writer) error {
	book, err := uc.GetBook(ctx, ownerID, bookID)
	if err != nil {
		return err
	}
	chapters, err := uc.repo.ListChapters(ctx, bookID)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	if err := uc.exporter.Export(w, book, chapters); err != nil {
		return fmt.Errorf("export book: %w", err)
	}
	return nil
}
