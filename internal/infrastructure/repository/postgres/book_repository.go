package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/readwise/internal/core/domain"
)

const foreignKeyViolation = "23503"

type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *BookRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	chapter_count INTEGER NOT NULL,
	overview JSONB,
	owner_id TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_books_owner_created ON books(owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chapters (
	id TEXT PRIMARY KEY,
	book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	owner_id TEXT NOT NULL DEFAULT '',
	chapter_index INTEGER NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	analysis JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (book_id, chapter_index)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *BookRepository) CreateBook(ctx context.Context, book *domain.Book) error {
	overview, err := marshalAnalysis(book.Overview)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO books (id, title, status, chapter_count, overview, owner_id, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		book.ID, book.Title, string(book.Status), book.ChapterCount, overview,
		book.OwnerID, book.Error, book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *BookRepository) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, status, chapter_count, overview, owner_id, error_message, created_at, updated_at
FROM books
WHERE id = $1
`, id)

	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrBookNotFound, "get book", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get book by id: %w", err)
	}
	return &book, nil
}

func (r *BookRepository) ListBooks(ctx context.Context, ownerID string) ([]domain.Book, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, status, chapter_count, overview, owner_id, error_message, created_at, updated_at
FROM books
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return out, nil
}

// CompleteBook and FailBook only move a book out of processing; a book that
// is gone or already terminal reports ErrBookNotFound.
func (r *BookRepository) CompleteBook(ctx context.Context, id string, overview domain.Analysis) error {
	raw, err := marshalAnalysis(&overview)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE books
SET status = $2, overview = $3, error_message = '', updated_at = $4
WHERE id = $1 AND status = 'processing'
`, id, string(domain.StatusCompleted), raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete book: %w", err)
	}
	return requireAffected(res, "complete book", id)
}

func (r *BookRepository) FailBook(ctx context.Context, id string, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE books
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND status = 'processing'
`, id, string(domain.StatusError), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail book: %w", err)
	}
	return requireAffected(res, "fail book", id)
}

func (r *BookRepository) DeleteBook(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return requireAffected(res, "delete book", id)
}

// CreateChapter upserts by chapter id so a redelivered enrichment job can
// rewrite chapters it already stored.
func (r *BookRepository) CreateChapter(ctx context.Context, chapter *domain.Chapter) error {
	analysis, err := marshalAnalysis(chapter.Analysis)
	if err != nil {
		return err
	}
	if analysis == nil {
		analysis = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO chapters (id, book_id, owner_id, chapter_index, title, content, analysis, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title, content = EXCLUDED.content, analysis = EXCLUDED.analysis
`,
		chapter.ID, chapter.BookID, chapter.OwnerID, chapter.Index,
		chapter.Title, chapter.Text, analysis, chapter.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.WrapError(domain.ErrBookNotFound, "create chapter", fmt.Errorf("book_id=%s", chapter.BookID))
		}
		return fmt.Errorf("insert chapter: %w", err)
	}
	return nil
}

func (r *BookRepository) GetChapter(ctx context.Context, id string) (*domain.Chapter, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, book_id, owner_id, chapter_index, title, content, analysis, created_at
FROM chapters
WHERE id = $1
`, id)

	chapter, err := scanChapter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChapterNotFound, "get chapter", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get chapter by id: %w", err)
	}
	return &chapter, nil
}

func (r *BookRepository) ListChapters(ctx context.Context, bookID string) ([]domain.Chapter, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, book_id, owner_id, chapter_index, title, content, analysis, created_at
FROM chapters
WHERE book_id = $1
ORDER BY chapter_index ASC
`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chapter, 0)
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, chapter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (domain.Book, error) {
	var book domain.Book
	var status string
	var overviewRaw []byte

	if err := row.Scan(
		&book.ID, &book.Title, &status, &book.ChapterCount, &overviewRaw,
		&book.OwnerID, &book.Error, &book.CreatedAt, &book.UpdatedAt,
	); err != nil {
		return domain.Book{}, err
	}
	book.Status = domain.BookStatus(status)

	overview, err := unmarshalAnalysis(overviewRaw)
	if err != nil {
		return domain.Book{}, fmt.Errorf("unmarshal overview: %w", err)
	}
	book.Overview = overview
	return book, nil
}

func scanChapter(row rowScanner) (domain.Chapter, error) {
	var chapter domain.Chapter
	var analysisRaw []byte

	if err := row.Scan(
		&chapter.ID, &chapter.BookID, &chapter.OwnerID, &chapter.Index,
		&chapter.Title, &chapter.Text, &analysisRaw, &chapter.CreatedAt,
	); err != nil {
		return domain.Chapter{}, err
	}

	analysis, err := unmarshalAnalysis(analysisRaw)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	chapter.Analysis = analysis
	return chapter, nil
}

func marshalAnalysis(analysis *domain.Analysis) ([]byte, error) {
	if analysis == nil {
		return nil, nil
	}
	raw, err := json.Marshal(analysis.Normalize())
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	return raw, nil
}

func unmarshalAnalysis(raw []byte) (*domain.Analysis, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var analysis domain.Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, err
	}
	normalized := analysis.Normalize()
	return &normalized, nil
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrBookNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
