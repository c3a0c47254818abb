package domain

import (
	"fmt"
	"time"
)

type BookStatus string

const (
	StatusProcessing BookStatus = "processing"
	StatusCompleted  BookStatus = "completed"
	StatusError      BookStatus = "error"
)

// Terminal reports whether no further status transition is allowed.
func (s BookStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type Book struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       BookStatus `json:"status"`
	ChapterCount int        `json:"chapter_count"`
	Overview     *Analysis  `json:"overview,omitempty"`
	OwnerID      string     `json:"owner_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Chapter struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Index     int       `json:"chapter_index"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChapterUnit is a contiguous span of source text detected as one chapter.
type ChapterUnit struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// EnrichmentJob is the unit of background work scheduled once per upload.
type EnrichmentJob struct {
	BookID   string        `json:"book_id"`
	Title    string        `json:"title"`
	OwnerID  string        `json:"owner_id,omitempty"`
	Chapters []ChapterUnit `json:"chapters"`
}

// ChapterID derives the deterministic chapter identity.
func ChapterID(bookID string, index int) string {
	return fmt.Sprintf("%s_chapter_%d", bookID, index)
}
