package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
)

const defaultMaxUploadBytes = 50 << 20

type UploadBookUseCase struct {
	repo       ports.BookRepository
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	segmenter  ports.ChapterSegmenter
	dispatcher ports.EnrichmentDispatcher
	maxBytes   int64
}

func NewUploadBookUseCase(
	repo ports.BookRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	segmenter ports.ChapterSegmenter,
	dispatcher ports.EnrichmentDispatcher,
	maxBytes int64,
) *UploadBookUseCase {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &UploadBookUseCase{
		repo:       repo,
		storage:    storage,
		extractor:  extractor,
		segmenter:  segmenter,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
	}
}

// Upload extracts and segments the document synchronously, records the book
// as processing and hands enrichment off to the dispatcher.
func (uc *UploadBookUseCase) Upload(
	ctx context.Context,
	ownerID, filename string,
	body io.Reader,
) (*domain.Book, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload book", errors.New("filename is required"))
	}

	data, err := io.ReadAll(io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > uc.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload book", fmt.Errorf("file exceeds %d bytes", uc.maxBytes))
	}

	text, err := uc.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	units := uc.segmenter.Segment(text)
	if len(units) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload book", errors.New("could not parse file or empty content"))
	}

	id := uuid.NewString()
	if err := uc.storage.Save(ctx, SourceTextKey(id), bytes.NewBufferString(text)); err != nil {
		return nil, fmt.Errorf("save source text: %w", err)
	}

	now := time.Now().UTC()
	book := &domain.Book{
		ID:           id,
		Title:        bookTitle(filename),
		Status:       domain.StatusProcessing,
		ChapterCount: len(units),
		OwnerID:      ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.CreateBook(ctx, book); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), SourceTextKey(id)); delErr != nil {
			slog.Warn("source_text_cleanup_failed", "book_id", id, "error", delErr)
		}
		return nil, fmt.Errorf("create book record: %w", err)
	}

	job := domain.EnrichmentJob{
		BookID:   book.ID,
		Title:    book.Title,
		OwnerID:  ownerID,
		Chapters: units,
	}
	if err := uc.dispatcher.Dispatch(ctx, job); err != nil {
		if failErr := uc.repo.FailBook(ctx, book.ID, err.Error()); failErr != nil {
			return nil, fmt.Errorf("dispatch enrichment: %w; mark error status: %v", err, failErr)
		}
		return nil, fmt.Errorf("dispatch enrichment: %w", err)
	}

	return book, nil
}

func bookTitle(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" {
		return base
	}
	return title
}
