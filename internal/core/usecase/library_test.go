package usecase

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/kirillkom/readwise/internal/core/domain"
)

func newLibraryFixture() (*LibraryUseCase, *memRepo, *memStorage, *RunRegistry, *exporterFake) {
	repo := newMemRepo()
	storage := newMemStorage()
	runs := NewRunRegistry()
	exporter := &exporterFake{}
	return NewLibraryUseCase(repo, storage, exporter, runs), repo, storage, runs, exporter
}

func seedChapters(repo *memRepo, bookID string, n int) {
	for _, unit := range units(n) {
		_ = repo.CreateChapter(context.Background(), &domain.Chapter{
			ID:      domain.ChapterID(bookID, unit.Index),
			BookID:  bookID,
			OwnerID: "user-1",
			Index:   unit.Index,
			Title:   unit.Title,
			Text:    unit.Text,
		})
	}
}

func TestLibraryGetBookHidesOtherOwners(t *testing.T) {
	library, repo, _, _, _ := newLibraryFixture()
	seedBook(repo, "b1", 1)

	if _, err := library.GetBook(context.Background(), "user-1", "b1"); err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	_, err := library.GetBook(context.Background(), "user-2", "b1")
	if !domain.IsKind(err, domain.ErrBookNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
}

func TestLibraryListChaptersOrdered(t *testing.T) {
	library, repo, _, _, _ := newLibraryFixture()
	seedBook(repo, "b1", 3)
	seedChapters(repo, "b1", 3)

	chapters, err := library.ListChapters(context.Background(), "user-1", "b1")
	if err != nil {
		t.Fatalf("ListChapters() error = %v", err)
	}
	if len(chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(chapters))
	}
	for i, chapter := range chapters {
		if chapter.Index != i {
			t.Fatalf("expected chapter %d at position %d", chapter.Index, i)
		}
	}
}

func TestLibraryGetChapterByIndex(t *testing.T) {
	library, repo, _, _, _ := newLibraryFixture()
	seedBook(repo, "b1", 2)
	seedChapters(repo, "b1", 2)

	chapter, err := library.GetChapter(context.Background(), "user-1", "b1", 1)
	if err != nil {
		t.Fatalf("GetChapter() error = %v", err)
	}
	if chapter.ID != "b1_chapter_1" || chapter.Title != "Chapter 2" {
		t.Fatalf("unexpected chapter: %+v", chapter)
	}

	if _, err := library.GetChapter(context.Background(), "user-1", "b1", 5); !domain.IsKind(err, domain.ErrChapterNotFound) {
		t.Fatalf("expected chapter not found, got %v", err)
	}
	if _, err := library.GetChapter(context.Background(), "user-1", "b1", -1); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative index, got %v", err)
	}
}

func TestLibraryDeleteBookRemovesChaptersAndSource(t *testing.T) {
	library, repo, storage, _, _ := newLibraryFixture()
	seedBook(repo, "b1", 2)
	seedChapters(repo, "b1", 2)
	storage.objects[SourceTextKey("b1")] = "text"

	if err := library.DeleteBook(context.Background(), "user-1", "b1"); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}
	if _, err := library.GetBook(context.Background(), "user-1", "b1"); !domain.IsKind(err, domain.ErrBookNotFound) {
		t.Fatalf("expected deleted book to be gone, got %v", err)
	}
	if len(repo.chapters) != 0 {
		t.Fatalf("expected chapters to be deleted with the book, got %d", len(repo.chapters))
	}
	if _, ok := storage.objects[SourceTextKey("b1")]; ok {
		t.Fatalf("expected source text to be deleted")
	}
}

func TestLibraryDeleteBookForeignOwner(t *testing.T) {
	library, repo, _, _, _ := newLibraryFixture()
	seedBook(repo, "b1", 1)

	if err := library.DeleteBook(context.Background(), "user-2", "b1"); !domain.IsKind(err, domain.ErrBookNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := repo.book("b1"); !ok {
		t.Fatalf("foreign delete must not remove the book")
	}
}

func TestLibraryDeleteBookStopsRunningEnrichment(t *testing.T) {
	library, repo, storage, runs, _ := newLibraryFixture()
	model := &modelFake{delay: func(string) time.Duration { return time.Minute }}
	analyzer := NewAnalyzer(model, 0)
	enrich := NewEnrichBookUseCase(repo, storage, segmenterFake{}, analyzer, analyzer, runs, EnrichOptions{})
	seedBook(repo, "b1", 3)

	done := make(chan error, 1)
	go func() {
		done <- enrich.Run(context.Background(), jobFor("b1", 3))
	}()

	deadline := time.Now().Add(time.Second)
	for runs.Active() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("enrichment run did not start")
		}
		time.Sleep(time.Millisecond)
	}

	if err := library.DeleteBook(context.Background(), "user-1", "b1"); err != nil {
		t.Fatalf("DeleteBook() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("enrichment run did not stop after delete")
	}
	if _, ok := repo.book("b1"); ok {
		t.Fatalf("deleted book must stay deleted")
	}
	if len(repo.chapters) != 0 {
		t.Fatalf("expected no chapters after delete, got %d", len(repo.chapters))
	}
}

func TestLibraryExportBook(t *testing.T) {
	library, repo, _, _, exporter := newLibraryFixture()
	seedBook(repo, "b1", 2)
	seedChapters(repo, "b1", 2)

	var buf bytes.Buffer
	if err := library.ExportBook(context.Background(), "user-1", "b1", &buf); err != nil {
		t.Fatalf("ExportBook() error = %v", err)
	}
	if exporter.chapters != 2 {
		t.Fatalf("expected 2 exported chapters, got %d", exporter.chapters)
	}
	if buf.String() != "Book b1" {
		t.Fatalf("unexpected export body: %q", buf.String())
	}
}
