package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("ENRICH_DISPATCH", "")
	t.Setenv("ENRICH_CONCURRENCY", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANALYSIS_TIMEOUT", "")
	t.Setenv("UPLOAD_MAX_BYTES", "")

	cfg := Load()
	if cfg.StoreDriver != StorePostgres {
		t.Fatalf("expected default store driver postgres, got %q", cfg.StoreDriver)
	}
	if cfg.EnrichDispatch != DispatchLocal {
		t.Fatalf("expected default dispatch local, got %q", cfg.EnrichDispatch)
	}
	if cfg.EnrichConcurrency != 1 {
		t.Fatalf("expected sequential enrichment by default, got %d", cfg.EnrichConcurrency)
	}
	if cfg.LLMProvider != ProviderOllama {
		t.Fatalf("expected default provider ollama, got %q", cfg.LLMProvider)
	}
	if cfg.AnalysisTimeout != 90*time.Second {
		t.Fatalf("expected default analysis timeout 90s, got %s", cfg.AnalysisTimeout)
	}
	if cfg.UploadMaxBytes != 50<<20 {
		t.Fatalf("expected default upload limit 50MiB, got %d", cfg.UploadMaxBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "BOLT")
	t.Setenv("ENRICH_CONCURRENCY", "4")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("ANALYSIS_TIMEOUT", "45")
	t.Setenv("WORKER_JOB_TIMEOUT", "10m")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("LLM_RETRY_INITIAL_BACKOFF", "5")

	cfg := Load()
	if cfg.StoreDriver != StoreBolt {
		t.Fatalf("expected bolt store, got %q", cfg.StoreDriver)
	}
	if cfg.EnrichConcurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.EnrichConcurrency)
	}
	if cfg.LLMProvider != ProviderGemini {
		t.Fatalf("expected gemini provider, got %q", cfg.LLMProvider)
	}
	if cfg.AnalysisTimeout != 45*time.Second {
		t.Fatalf("expected plain seconds to parse, got %s", cfg.AnalysisTimeout)
	}
	if cfg.WorkerJobTimeout != 10*time.Minute {
		t.Fatalf("expected 10m worker timeout, got %s", cfg.WorkerJobTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected fractional rps, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.LLMRetryInitialBackoff != 5*time.Second {
		t.Fatalf("expected 5s llm backoff, got %s", cfg.LLMRetryInitialBackoff)
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	base := Config{StoreDriver: StorePostgres, EnrichDispatch: DispatchLocal, LLMProvider: ProviderNone}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := map[string]Config{
		"store":     {StoreDriver: "mysql", EnrichDispatch: DispatchLocal, LLMProvider: ProviderNone},
		"dispatch":  {StoreDriver: StorePostgres, EnrichDispatch: "kafka", LLMProvider: ProviderNone},
		"provider":  {StoreDriver: StorePostgres, EnrichDispatch: DispatchLocal, LLMProvider: "claude"},
		"bolt+nats": {StoreDriver: StoreBolt, EnrichDispatch: DispatchNATS, LLMProvider: ProviderNone},
	}
	for name, cfg := range tests {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
