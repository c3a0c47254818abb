package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/readwise/internal/infrastructure/resilience"
)

func TestGenerateJSONSendsSystemPromptAndFormat(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"summary\":\"ok\"}  "}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", "llama3.1:8b", time.Second)
	got, err := client.GenerateJSON(context.Background(), "be brief", "analyze this")
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if got != `{"summary":"ok"}` {
		t.Fatalf("unexpected response: %q", got)
	}
	if payload["format"] != "json" || payload["system"] != "be brief" || payload["prompt"] != "analyze this" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["model"] != "llama3.1:8b" || payload["stream"] != false {
		t.Fatalf("unexpected model options: %v", payload)
	}
}

func TestGenerateJSONIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", time.Second).GenerateJSON(context.Background(), "", "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status error, got %T", err)
	}
	if !resilience.ClassifyRemote(err).Retryable {
		t.Fatalf("502 must be retryable")
	}
}
