package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kirillkom/readwise/internal/core/domain"
)

var (
	booksBucket    = []byte("books")
	chaptersBucket = []byte("chapters")
)

// BookStore keeps books and chapters in a single bbolt file. Chapters are
// keyed by chapter id, so a book's chapters share the "<book>_chapter_" prefix.
type BookStore struct {
	db *bolt.DB
}

func Open(path string) (*BookStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{booksBucket, chaptersBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BookStore{db: db}, nil
}

func (s *BookStore) Close() error {
	return s.db.Close()
}

func (s *BookStore) CreateBook(_ context.Context, book *domain.Book) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(booksBucket).Put([]byte(book.ID), raw)
	})
}

func (s *BookStore) GetBook(_ context.Context, id string) (*domain.Book, error) {
	var book *domain.Book
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		book, err = loadBook(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (s *BookStore) ListBooks(_ context.Context, ownerID string) ([]domain.Book, error) {
	out := make([]domain.Book, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(booksBucket).ForEach(func(_, v []byte) error {
			var book domain.Book
			if err := json.Unmarshal(v, &book); err != nil {
				return fmt.Errorf("unmarshal book: %w", err)
			}
			if book.OwnerID == ownerID {
				out = append(out, book)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *BookStore) CompleteBook(_ context.Context, id string, overview domain.Analysis) error {
	return s.transition(id, "complete book", func(book *domain.Book) {
		normalized := overview.Normalize()
		book.Status = domain.StatusCompleted
		book.Overview = &normalized
		book.Error = ""
	})
}

func (s *BookStore) FailBook(_ context.Context, id string, errMessage string) error {
	return s.transition(id, "fail book", func(book *domain.Book) {
		book.Status = domain.StatusError
		book.Error = errMessage
	})
}

// transition applies fn only to a book that is still processing.
func (s *BookStore) transition(id, op string, fn func(*domain.Book)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		book, err := loadBook(tx, id)
		if err != nil {
			return err
		}
		if book.Status != domain.StatusProcessing {
			return domain.WrapError(domain.ErrBookNotFound, op, fmt.Errorf("id=%s status=%s", id, book.Status))
		}
		fn(book)
		book.UpdatedAt = time.Now().UTC()
		raw, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}
		return tx.Bucket(booksBucket).Put([]byte(id), raw)
	})
}

func (s *BookStore) DeleteBook(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		books := tx.Bucket(booksBucket)
		if books.Get([]byte(id)) == nil {
			return domain.WrapError(domain.ErrBookNotFound, "delete book", fmt.Errorf("id=%s", id))
		}
		if err := books.Delete([]byte(id)); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}

		chapters := tx.Bucket(chaptersBucket)
		prefix := chapterPrefix(id)
		var keys [][]byte
		c := chapters.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := chapters.Delete(k); err != nil {
				return fmt.Errorf("delete chapter: %w", err)
			}
		}
		return nil
	})
}

// CreateChapter fails with ErrBookNotFound once the book is gone; the check
// and the write share one transaction.
func (s *BookStore) CreateChapter(_ context.Context, chapter *domain.Chapter) error {
	raw, err := json.Marshal(chapter)
	if err != nil {
		return fmt.Errorf("marshal chapter: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(booksBucket).Get([]byte(chapter.BookID)) == nil {
			return domain.WrapError(domain.ErrBookNotFound, "create chapter", fmt.Errorf("book_id=%s", chapter.BookID))
		}
		return tx.Bucket(chaptersBucket).Put([]byte(chapter.ID), raw)
	})
}

func (s *BookStore) GetChapter(_ context.Context, id string) (*domain.Chapter, error) {
	var chapter domain.Chapter
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(chaptersBucket).Get([]byte(id))
		if raw == nil {
			return domain.WrapError(domain.ErrChapterNotFound, "get chapter", fmt.Errorf("id=%s", id))
		}
		return json.Unmarshal(raw, &chapter)
	})
	if err != nil {
		return nil, err
	}
	return &chapter, nil
}

func (s *BookStore) ListChapters(_ context.Context, bookID string) ([]domain.Chapter, error) {
	out := make([]domain.Chapter, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := chapterPrefix(bookID)
		c := tx.Bucket(chaptersBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var chapter domain.Chapter
			if err := json.Unmarshal(v, &chapter); err != nil {
				return fmt.Errorf("unmarshal chapter: %w", err)
			}
			if chapter.BookID == bookID {
				out = append(out, chapter)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func loadBook(tx *bolt.Tx, id string) (*domain.Book, error) {
	raw := tx.Bucket(booksBucket).Get([]byte(id))
	if raw == nil {
		return nil, domain.WrapError(domain.ErrBookNotFound, "get book", fmt.Errorf("id=%s", id))
	}
	var book domain.Book
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("unmarshal book: %w", err)
	}
	return &book, nil
}

func chapterPrefix(bookID string) []byte {
	return []byte(bookID + "_chapter_")
}
