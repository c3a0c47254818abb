package structured

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/infrastructure/resilience"
)

const defaultMaxInputChars = 12000

var errMalformedReply = errors.New("malformed analysis reply")

// Backend is one LLM provider able to answer a system+user prompt pair with
// a JSON document.
type Backend interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

type Options struct {
	Prompts       *Prompts
	MaxInputChars int
	Executor      *resilience.Executor
}

// Model asks a Backend for chapter analyses and book overviews.
type Model struct {
	backend  Backend
	prompts  *Prompts
	maxInput int
	executor *resilience.Executor
}

func New(backend Backend, opts Options) (*Model, error) {
	if backend == nil {
		return nil, fmt.Errorf("structured model: backend is nil")
	}
	prompts := opts.Prompts
	if prompts == nil {
		var err error
		prompts, err = DefaultPrompts()
		if err != nil {
			return nil, err
		}
	}
	maxInput := opts.MaxInputChars
	if maxInput <= 0 {
		maxInput = defaultMaxInputChars
	}
	return &Model{
		backend:  backend,
		prompts:  prompts,
		maxInput: maxInput,
		executor: opts.Executor,
	}, nil
}

func (m *Model) AnalyzeChapter(ctx context.Context, title, text string) (domain.Analysis, error) {
	prompt, err := render(m.prompts.chapterUser, title, truncateRunes(text, m.maxInput))
	if err != nil {
		return domain.Analysis{}, err
	}
	return m.generate(ctx, "llm.analyze_chapter", m.prompts.chapterSystem, prompt)
}

func (m *Model) AnalyzeBook(ctx context.Context, title, fullText string) (domain.Analysis, error) {
	prompt, err := render(m.prompts.bookUser, title, truncateRunes(fullText, m.maxInput))
	if err != nil {
		return domain.Analysis{}, err
	}
	return m.generate(ctx, "llm.analyze_book", m.prompts.bookSystem, prompt)
}

func (m *Model) generate(ctx context.Context, operation, system, prompt string) (domain.Analysis, error) {
	analysis, err := resilience.Call(ctx, m.executor, operation, func(callCtx context.Context) (domain.Analysis, error) {
		raw, err := m.backend.GenerateJSON(callCtx, system, prompt)
		if err != nil {
			return domain.Analysis{}, err
		}
		return parseAnalysis(raw)
	}, classify)
	if err != nil {
		return domain.Analysis{}, resilience.WrapTemporary(operation, err, classify)
	}
	return analysis, nil
}

// classify retries malformed replies without counting them against the breaker.
func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, errMalformedReply) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
	}
	return resilience.ClassifyRemote(err)
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
