package bootstrap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/readwise/internal/config"
	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/infrastructure/resilience"
)

func boltConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		StoreDriver:       config.StoreBolt,
		BoltPath:          filepath.Join(dir, "readwise.db"),
		StoragePath:       filepath.Join(dir, "storage"),
		EnrichDispatch:    config.DispatchLocal,
		EnrichConcurrency: 1,
		LLMProvider:       config.ProviderNone,
		AnalysisTimeout:   time.Second,
		WorkerJobTimeout:  time.Minute,
	}
}

func TestNewWiresBoltStoreWithLocalDispatch(t *testing.T) {
	app, err := New(context.Background(), boltConfig(t), "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if err := app.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	}()

	if app.Queue != nil {
		t.Fatalf("local dispatch must not connect to NATS")
	}
	if app.UploadUC == nil || app.EnrichUC == nil || app.LibraryUC == nil {
		t.Fatalf("expected use cases to be wired")
	}

	books, err := app.LibraryUC.ListBooks(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListBooks() error = %v", err)
	}
	if len(books) != 0 {
		t.Fatalf("expected empty library, got %d books", len(books))
	}

	_, err = app.UploadUC.Upload(context.Background(), "user-1", "notes.txt", strings.NewReader("plain text is not extracted"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for non-pdf upload, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := boltConfig(t)
	cfg.LLMProvider = "unknown"
	if _, err := New(context.Background(), cfg, "test"); err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestNewAnalysisModelSelectsProvider(t *testing.T) {
	model, err := NewAnalysisModel(context.Background(), config.Config{LLMProvider: config.ProviderNone}, nil)
	if err != nil {
		t.Fatalf("NewAnalysisModel(none) error = %v", err)
	}
	if model != nil {
		t.Fatalf("expected nil model for provider none")
	}

	model, err = NewAnalysisModel(context.Background(), config.Config{
		LLMProvider: config.ProviderOllama,
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "llama3.1:8b",
	}, nil)
	if err != nil {
		t.Fatalf("NewAnalysisModel(ollama) error = %v", err)
	}
	if model == nil {
		t.Fatalf("expected ollama-backed model")
	}

	if _, err := NewAnalysisModel(context.Background(), config.Config{LLMProvider: config.ProviderOpenAI}, nil); err == nil {
		t.Fatalf("expected error for openai without api key")
	}

	if _, err := NewAnalysisModel(context.Background(), config.Config{
		LLMProvider: config.ProviderOllama,
		PromptsFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}, nil); err == nil {
		t.Fatalf("expected error for missing prompts file")
	}
}

func TestResilienceConfigKeepsDefaultsForUnset(t *testing.T) {
	out := ResilienceConfig(config.Config{
		LLMRetryMaxAttempts: 5,
		QueueRetryBudget:    time.Second,
		BreakerEnabled:      true,
		BreakerFailureRatio: 0.25,
	})
	if out.LLM.MaxAttempts != 5 {
		t.Fatalf("expected 5 llm attempts, got %d", out.LLM.MaxAttempts)
	}
	if out.Publish.MaxAttempts != resilience.DefaultConfig().Publish.MaxAttempts {
		t.Fatalf("publish attempts must keep their default, got %d", out.Publish.MaxAttempts)
	}
	if out.Publish.Budget != time.Second {
		t.Fatalf("expected 1s publish budget, got %s", out.Publish.Budget)
	}
	if out.Breaker.MinRequests != resilience.DefaultConfig().Breaker.MinRequests {
		t.Fatalf("expected default min requests, got %d", out.Breaker.MinRequests)
	}
	if out.Breaker.FailureRatio != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", out.Breaker.FailureRatio)
	}
}
