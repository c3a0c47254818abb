package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/healthz":                   "/healthz",
		"/v1/books":                  "/v1/books",
		"/v1/books/abc":              "/v1/books/{id}",
		"/v1/books/abc/chapters":     "/v1/books/{id}/chapters",
		"/v1/books/abc/chapters/12":  "/v1/books/{id}/chapters/{index}",
		"/v1/books/abc/export.xlsx":  "/v1/books/{id}/export.xlsx",
		"/v1/books/abc/unknown/deep": "/v1/books/other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnrichmentMetricsShareHTTPRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("readwise-api")
	enrichment := NewEnrichmentMetrics("readwise-api", httpMetrics.Registry())

	enrichment.StartRun()
	enrichment.ChapterAnalyzed(true)
	enrichment.ChapterAnalyzed(false)
	enrichment.FinishRun("completed", 2*time.Second)
	httpMetrics.RecordUpload("readwise-api", 3, nil)
	httpMetrics.RecordUpload("readwise-api", 0, errors.New("empty"))

	handler := httpMetrics.Middleware("readwise-api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/books", nil))

	rec := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`readwise_enrichment_runs_total{outcome="completed",service="readwise-api"} 1`,
		`readwise_enrichment_chapters_total{analysis="degraded",service="readwise-api"} 1`,
		`readwise_books_uploads_total{result="rejected",service="readwise-api"} 1`,
		`readwise_http_requests_total{method="POST",path="/v1/books",service="readwise-api",status="202"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output misses %q:\n%s", want, body)
		}
	}
}
