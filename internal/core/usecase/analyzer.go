package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
)

var errModelNotConfigured = errors.New("analysis model is not configured")

// Analyzer turns analysis-model failures into placeholder results so callers
// never see an error. It serves both chapters and whole-book overviews.
type Analyzer struct {
	model   ports.AnalysisModel
	timeout time.Duration
}

func NewAnalyzer(model ports.AnalysisModel, timeout time.Duration) *Analyzer {
	return &Analyzer{
		model:   model,
		timeout: timeout,
	}
}

func (a *Analyzer) AnalyzeChapter(ctx context.Context, text, title string) domain.Analysis {
	analysis, err := a.call(ctx, func(callCtx context.Context) (domain.Analysis, error) {
		return a.model.AnalyzeChapter(callCtx, title, text)
	})
	if err != nil {
		slog.Warn("chapter_analysis_degraded", "title", title, "error", err)
		return degradedAnalysis("chapter", err)
	}
	return analysis
}

func (a *Analyzer) AggregateBook(ctx context.Context, fullText, title string) domain.Analysis {
	analysis, err := a.call(ctx, func(callCtx context.Context) (domain.Analysis, error) {
		return a.model.AnalyzeBook(callCtx, title, fullText)
	})
	if err != nil {
		slog.Warn("book_overview_degraded", "title", title, "error", err)
		return degradedAnalysis("book", err)
	}
	return analysis
}

type analysisOutcome struct {
	analysis domain.Analysis
	err      error
}

// call bounds the model call by the configured timeout even when the model
// ignores context cancellation.
func (a *Analyzer) call(ctx context.Context, fn func(context.Context) (domain.Analysis, error)) (domain.Analysis, error) {
	if a.model == nil {
		return domain.Analysis{}, errModelNotConfigured
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
	}
	defer cancel()

	done := make(chan analysisOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- analysisOutcome{err: fmt.Errorf("analysis model panic: %v", r)}
			}
		}()
		analysis, err := fn(callCtx)
		done <- analysisOutcome{analysis: analysis, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return domain.Analysis{}, fmt.Errorf("analysis timed out after %s: %w", a.timeout, out.err)
			}
			return domain.Analysis{}, out.err
		}
		analysis := out.analysis.Normalize()
		analysis.OK = true
		return analysis, nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return domain.Analysis{}, fmt.Errorf("analysis timed out after %s", a.timeout)
		}
		return domain.Analysis{}, callCtx.Err()
	}
}

func degradedAnalysis(scope string, err error) domain.Analysis {
	return domain.Analysis{
		Summary:   fmt.Sprintf("Analysis unavailable: %v", err),
		KeyPoints: []string{fmt.Sprintf("Key points could not be generated for this %s.", scope)},
		Questions: []string{fmt.Sprintf("Discussion questions could not be generated for this %s.", scope)},
		OK:        false,
	}
}
