package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
)

const (
	outcomeCompleted = "completed"
	outcomeError     = "error"
	outcomeAborted   = "aborted"

	failStatusTimeout = 10 * time.Second
)

// errRunAborted signals that the book disappeared or stopped accepting updates
// while its enrichment was in flight.
var errRunAborted = errors.New("book no longer accepts enrichment updates")

type EnrichOptions struct {
	// Concurrency caps parallel chapter analyses; 1 keeps the run sequential.
	Concurrency int
	Observer    ports.EnrichmentObserver
}

type EnrichBookUseCase struct {
	repo        ports.BookRepository
	storage     ports.ObjectStorage
	segmenter   ports.ChapterSegmenter
	analyzer    ports.ChapterAnalyzer
	aggregator  ports.BookAggregator
	runs        *RunRegistry
	concurrency int
	observer    ports.EnrichmentObserver
}

func NewEnrichBookUseCase(
	repo ports.BookRepository,
	storage ports.ObjectStorage,
	segmenter ports.ChapterSegmenter,
	analyzer ports.ChapterAnalyzer,
	aggregator ports.BookAggregator,
	runs *RunRegistry,
	opts EnrichOptions,
) *EnrichBookUseCase {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &EnrichBookUseCase{
		repo:        repo,
		storage:     storage,
		segmenter:   segmenter,
		analyzer:    analyzer,
		aggregator:  aggregator,
		runs:        runs,
		concurrency: concurrency,
		observer:    observer,
	}
}

// Run analyzes every chapter, persisting each in index order as soon as it is
// ready, then writes the whole-book overview. Any failure inside the run marks
// the book as error; chapters already written are kept.
func (uc *EnrichBookUseCase) Run(ctx context.Context, job domain.EnrichmentJob) error {
	start := time.Now()
	logger := slog.With("book_id", job.BookID)
	logger.Info("enrichment_started", "chapters", len(job.Chapters), "concurrency", uc.concurrency)
	uc.observer.StartRun()

	runCtx, release := uc.runs.Track(ctx, job.BookID)
	runErr := uc.runGuarded(runCtx, job)
	aborted := errors.Is(runErr, errRunAborted) ||
		(runErr != nil && runCtx.Err() != nil && ctx.Err() == nil)
	release()

	switch {
	case runErr == nil:
		uc.observer.FinishRun(outcomeCompleted, time.Since(start))
		logger.Info("enrichment_completed", "duration_ms", time.Since(start).Milliseconds())
		return nil
	case aborted:
		uc.observer.FinishRun(outcomeAborted, time.Since(start))
		logger.Info("enrichment_aborted", "reason", runErr.Error())
		return nil
	}

	uc.observer.FinishRun(outcomeError, time.Since(start))
	logger.Error("enrichment_failed", "error", runErr)
	if failErr := uc.markFailed(ctx, job.BookID, runErr); failErr != nil {
		return fmt.Errorf("%w; mark error status: %v", runErr, failErr)
	}
	return runErr
}

// RunByID rebuilds the job from the stored source text. Segmentation is
// deterministic, so the units match those counted at upload.
func (uc *EnrichBookUseCase) RunByID(ctx context.Context, bookID string) error {
	book, err := uc.repo.GetBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("fetch book by id: %w", err)
	}
	if book.Status.Terminal() {
		slog.Info("enrichment_skipped", "book_id", bookID, "status", book.Status)
		return nil
	}

	units, err := uc.loadUnits(ctx, book)
	if err != nil {
		if failErr := uc.markFailed(ctx, bookID, err); failErr != nil {
			return fmt.Errorf("%w; mark error status: %v", err, failErr)
		}
		return err
	}

	return uc.Run(ctx, domain.EnrichmentJob{
		BookID:   book.ID,
		Title:    book.Title,
		OwnerID:  book.OwnerID,
		Chapters: units,
	})
}

func (uc *EnrichBookUseCase) loadUnits(ctx context.Context, book *domain.Book) ([]domain.ChapterUnit, error) {
	reader, err := uc.storage.Open(ctx, SourceTextKey(book.ID))
	if err != nil {
		return nil, fmt.Errorf("open source text: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source text: %w", err)
	}

	units := uc.segmenter.Segment(string(raw))
	if len(units) != book.ChapterCount {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"segment source text",
			fmt.Errorf("chapter count mismatch: %d/%d", len(units), book.ChapterCount),
		)
	}
	return units, nil
}

func (uc *EnrichBookUseCase) runGuarded(ctx context.Context, job domain.EnrichmentJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enrichment panic: %v", r)
		}
	}()

	fullText, err := uc.enrichChapters(ctx, job)
	if err != nil {
		return err
	}

	overview := uc.aggregator.AggregateBook(ctx, fullText, job.Title)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("aggregate book: %w", err)
	}
	if err := uc.repo.CompleteBook(ctx, job.BookID, overview); err != nil {
		if domain.IsKind(err, domain.ErrBookNotFound) {
			return errRunAborted
		}
		return fmt.Errorf("save overview: %w", err)
	}
	return nil
}

// enrichChapters fans analyses out to at most uc.concurrency workers and
// commits results strictly in index order. It returns the original chapter
// texts joined with blank-line separators, for the whole-book overview.
func (uc *EnrichBookUseCase) enrichChapters(ctx context.Context, job domain.EnrichmentJob) (string, error) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan domain.Analysis, len(job.Chapters))
	for i := range results {
		results[i] = make(chan domain.Analysis, 1)
	}

	g, gctx := errgroup.WithContext(workCtx)
	g.SetLimit(uc.concurrency)

	scheduled := make(chan struct{})
	go func() {
		defer close(scheduled)
		for i, unit := range job.Chapters {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("analyze chapter %d: panic: %v", unit.Index, r)
					}
				}()
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] <- uc.analyzer.AnalyzeChapter(gctx, unit.Text, unit.Title)
				return nil
			})
		}
	}()

	join := func() error {
		<-scheduled
		return g.Wait()
	}

	var fullText strings.Builder
	for i, unit := range job.Chapters {
		var analysis domain.Analysis
		select {
		case analysis = <-results[i]:
		case <-gctx.Done():
			if err := join(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("analyze chapter %d: %w", unit.Index, context.Cause(gctx))
		}

		if err := uc.commitChapter(ctx, job, unit, analysis); err != nil {
			cancel()
			_ = join()
			return "", err
		}
		fullText.WriteString(unit.Text)
		fullText.WriteString("\n\n")
	}

	if err := join(); err != nil {
		return "", err
	}
	return fullText.String(), nil
}

func (uc *EnrichBookUseCase) commitChapter(ctx context.Context, job domain.EnrichmentJob, unit domain.ChapterUnit, analysis domain.Analysis) error {
	if _, err := uc.repo.GetBook(ctx, job.BookID); err != nil {
		if domain.IsKind(err, domain.ErrBookNotFound) {
			return errRunAborted
		}
		return fmt.Errorf("check book before chapter %d: %w", unit.Index, err)
	}

	chapter := &domain.Chapter{
		ID:        domain.ChapterID(job.BookID, unit.Index),
		BookID:    job.BookID,
		OwnerID:   job.OwnerID,
		Index:     unit.Index,
		Title:     unit.Title,
		Text:      unit.Text,
		Analysis:  &analysis,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.repo.CreateChapter(ctx, chapter); err != nil {
		if domain.IsKind(err, domain.ErrBookNotFound) {
			return errRunAborted
		}
		return fmt.Errorf("save chapter %d: %w", unit.Index, err)
	}

	uc.observer.ChapterAnalyzed(analysis.OK)
	slog.Info("chapter_analyzed",
		"book_id", job.BookID,
		"chapter_index", unit.Index,
		"analysis_ok", analysis.OK,
	)
	return nil
}

// markFailed runs detached from ctx so a cancelled run can still record its
// terminal status.
func (uc *EnrichBookUseCase) markFailed(ctx context.Context, bookID string, runErr error) error {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failStatusTimeout)
	defer cancel()

	err := uc.repo.FailBook(failCtx, bookID, runErr.Error())
	if domain.IsKind(err, domain.ErrBookNotFound) {
		return nil
	}
	return err
}

// SourceTextKey is the object storage key of a book's extracted text.
func SourceTextKey(bookID string) string {
	return bookID + ".txt"
}

type noopObserver struct{}

func (noopObserver) StartRun()                       {}
func (noopObserver) FinishRun(string, time.Duration) {}
func (noopObserver) ChapterAnalyzed(bool)            {}
