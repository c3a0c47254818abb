package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/readwise/internal/config"
	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
	"github.com/kirillkom/readwise/internal/observability/metrics"
)

const (
	serviceName       = "api"
	multipartOverhead = 1 << 20
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Router struct {
	cfg      config.Config
	uploader ports.BookUploader
	library  ports.BookLibrary
	metrics  *metrics.HTTPServerMetrics
	auth     authenticator
}

// NewRouter wires the book API. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	uploader ports.BookUploader,
	library ports.BookLibrary,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		uploader: uploader,
		library:  library,
		metrics:  httpMetrics,
		auth:     newAuthenticator(cfg.AuthJWTSecret),
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/books", rt.uploadBook)
	api.HandleFunc("GET /v1/books", rt.listBooks)
	api.HandleFunc("GET /v1/books/{id}", rt.getBook)
	api.HandleFunc("DELETE /v1/books/{id}", rt.deleteBook)
	api.HandleFunc("GET /v1/books/{id}/chapters", rt.listChapters)
	api.HandleFunc("GET /v1/books/{id}/chapters/{index}", rt.getChapter)
	api.HandleFunc("GET /v1/books/{id}/export.xlsx", rt.exportBook)

	var v1 http.Handler = api
	v1 = rt.auth.middleware(v1)
	v1 = backpressureMiddleware(v1, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	v1 = rateLimitMiddleware(v1, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", v1)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

type uploadResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       domain.BookStatus `json:"status"`
	ChapterCount int               `json:"chapter_count"`
}

func (rt *Router) uploadBook(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.UploadMaxBytes+multipartOverhead)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	book, err := rt.uploader.Upload(r.Context(), ownerFromContext(r.Context()), fileHeader.Filename, file)
	if rt.metrics != nil {
		chapters := 0
		if book != nil {
			chapters = book.ChapterCount
		}
		rt.metrics.RecordUpload(serviceName, chapters, err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		ID:           book.ID,
		Title:        book.Title,
		Status:       book.Status,
		ChapterCount: book.ChapterCount,
	})
}

func (rt *Router) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := rt.library.ListBooks(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if books == nil {
		books = []domain.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (rt *Router) getBook(w http.ResponseWriter, r *http.Request) {
	book, err := rt.library.GetBook(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (rt *Router) deleteBook(w http.ResponseWriter, r *http.Request) {
	if err := rt.library.DeleteBook(r.Context(), ownerFromContext(r.Context()), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := rt.library.ListChapters(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if chapters == nil {
		chapters = []domain.Chapter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

func (rt *Router) getChapter(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chapter index must be an integer"})
		return
	}
	chapter, err := rt.library.GetChapter(r.Context(), ownerFromContext(r.Context()), r.PathValue("id"), index)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapter)
}

func (rt *Router) exportBook(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	bookID := r.PathValue("id")

	book, err := rt.library.GetBook(r.Context(), ownerID, bookID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	// Buffered so a failed export still gets a JSON error.
	var buf bytes.Buffer
	if err := rt.library.ExportBook(r.Context(), ownerID, bookID, &buf); err != nil {
		rt.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(book.Title)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// exportFilename keeps letters, digits, dashes and underscores of the title.
func exportFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(title))
	if name == "" {
		name = "book"
	}
	return name + ".xlsx"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
