package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/readwise/internal/core/domain"
)

type memRepo struct {
	mu       sync.Mutex
	books    map[string]domain.Book
	chapters map[string]domain.Chapter

	createErr     error
	chapterOrder  []int
	failChapterAt int
	chapterErr    error
	onChapter     func(domain.Chapter)
}

func newMemRepo() *memRepo {
	return &memRepo{
		books:         make(map[string]domain.Book),
		chapters:      make(map[string]domain.Chapter),
		failChapterAt: -1,
	}
}

func (r *memRepo) CreateBook(_ context.Context, book *domain.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.books[book.ID] = *book
	return nil
}

func (r *memRepo) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	book, ok := r.books[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrBookNotFound, "get book", fmt.Errorf("id=%s", id))
	}
	return &book, nil
}

func (r *memRepo) ListBooks(_ context.Context, ownerID string) ([]domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Book, 0)
	for _, book := range r.books {
		if book.OwnerID == ownerID {
			out = append(out, book)
		}
	}
	return out, nil
}

func (r *memRepo) transition(id string, apply func(*domain.Book)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	book, ok := r.books[id]
	if !ok || book.Status != domain.StatusProcessing {
		return domain.WrapError(domain.ErrBookNotFound, "update book", fmt.Errorf("id=%s", id))
	}
	apply(&book)
	r.books[id] = book
	return nil
}

func (r *memRepo) CompleteBook(_ context.Context, id string, overview domain.Analysis) error {
	return r.transition(id, func(book *domain.Book) {
		book.Status = domain.StatusCompleted
		book.Overview = &overview
	})
}

func (r *memRepo) FailBook(_ context.Context, id string, errMessage string) error {
	return r.transition(id, func(book *domain.Book) {
		book.Status = domain.StatusError
		book.Error = errMessage
	})
}

func (r *memRepo) DeleteBook(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[id]; !ok {
		return domain.WrapError(domain.ErrBookNotFound, "delete book", fmt.Errorf("id=%s", id))
	}
	delete(r.books, id)
	for key, chapter := range r.chapters {
		if chapter.BookID == id {
			delete(r.chapters, key)
		}
	}
	return nil
}

func (r *memRepo) CreateChapter(_ context.Context, chapter *domain.Chapter) error {
	r.mu.Lock()
	if r.failChapterAt == chapter.Index {
		r.mu.Unlock()
		return r.chapterErr
	}
	if _, ok := r.books[chapter.BookID]; !ok {
		r.mu.Unlock()
		return domain.WrapError(domain.ErrBookNotFound, "create chapter", fmt.Errorf("book_id=%s", chapter.BookID))
	}
	r.chapters[chapter.ID] = *chapter
	r.chapterOrder = append(r.chapterOrder, chapter.Index)
	hook := r.onChapter
	r.mu.Unlock()

	if hook != nil {
		hook(*chapter)
	}
	return nil
}

func (r *memRepo) GetChapter(_ context.Context, id string) (*domain.Chapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chapter, ok := r.chapters[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrChapterNotFound, "get chapter", fmt.Errorf("id=%s", id))
	}
	return &chapter, nil
}

func (r *memRepo) ListChapters(_ context.Context, bookID string) ([]domain.Chapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Chapter, 0)
	for _, chapter := range r.chapters {
		if chapter.BookID == bookID {
			out = append(out, chapter)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *memRepo) book(id string) (domain.Book, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	book, ok := r.books[id]
	return book, ok
}

func (r *memRepo) writtenOrder() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.chapterOrder...)
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string]string)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = string(raw)
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("open file: %s: no such file", key)
	}
	return io.NopCloser(strings.NewReader(raw)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// modelFake answers from the chapter title; failures and delays are opt-in.
type modelFake struct {
	mu        sync.Mutex
	err       error
	delay     func(title string) time.Duration
	bookTexts []string
}

func (m *modelFake) AnalyzeChapter(ctx context.Context, title, _ string) (domain.Analysis, error) {
	if m.delay != nil {
		select {
		case <-time.After(m.delay(title)):
		case <-ctx.Done():
			return domain.Analysis{}, ctx.Err()
		}
	}
	if m.err != nil {
		return domain.Analysis{}, m.err
	}
	return domain.Analysis{
		Summary:   "summary of " + title,
		KeyPoints: []string{"point of " + title},
		Questions: []string{"question about " + title},
	}, nil
}

func (m *modelFake) AnalyzeBook(_ context.Context, title, fullText string) (domain.Analysis, error) {
	m.mu.Lock()
	m.bookTexts = append(m.bookTexts, fullText)
	m.mu.Unlock()
	if m.err != nil {
		return domain.Analysis{}, m.err
	}
	return domain.Analysis{Summary: "overview of " + title}, nil
}

type panicAggregator struct{}

func (panicAggregator) AggregateBook(context.Context, string, string) domain.Analysis {
	panic("aggregator contract violation")
}

type segmenterFake struct {
	units []domain.ChapterUnit
}

func (f segmenterFake) Segment(raw string) []domain.ChapterUnit {
	if raw == "" {
		return nil
	}
	return f.units
}

type extractorFake struct {
	text string
	err  error
}

func (f extractorFake) Extract(context.Context, string, []byte) (string, error) {
	return f.text, f.err
}

type dispatcherFake struct {
	jobs []domain.EnrichmentJob
	err  error
}

func (f *dispatcherFake) Dispatch(_ context.Context, job domain.EnrichmentJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type exporterFake struct {
	chapters int
}

func (f *exporterFake) Export(w io.Writer, book *domain.Book, chapters []domain.Chapter) error {
	f.chapters = len(chapters)
	_, err := io.Copy(w, bytes.NewBufferString(book.Title))
	return err
}

var errModelDown = errors.New("model down")

func units(n int) []domain.ChapterUnit {
	out := make([]domain.ChapterUnit, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.ChapterUnit{
			Index: i,
			Title: fmt.Sprintf("Chapter %d", i+1),
			Text:  fmt.Sprintf("Chapter %d\nbody %d", i+1, i+1),
		})
	}
	return out
}

func seedBook(repo *memRepo, id string, chapters int) {
	_ = repo.CreateBook(context.Background(), &domain.Book{
		ID:           id,
		Title:        "Book " + id,
		Status:       domain.StatusProcessing,
		ChapterCount: chapters,
		OwnerID:      "user-1",
		CreatedAt:    time.Now().UTC(),
	})
}
