package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/readwise/internal/config"
	"github.com/kirillkom/readwise/internal/core/ports"
	"github.com/kirillkom/readwise/internal/core/usecase"
	"github.com/kirillkom/readwise/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/readwise/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/readwise/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/readwise/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/readwise/internal/infrastructure/llm/openaichat"
	"github.com/kirillkom/readwise/internal/infrastructure/llm/structured"
	"github.com/kirillkom/readwise/internal/infrastructure/queue/local"
	"github.com/kirillkom/readwise/internal/infrastructure/queue/nats"
	"github.com/kirillkom/readwise/internal/infrastructure/repository/boltdb"
	"github.com/kirillkom/readwise/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/readwise/internal/infrastructure/resilience"
	"github.com/kirillkom/readwise/internal/infrastructure/segmentation"
	"github.com/kirillkom/readwise/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/readwise/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Repo    ports.BookRepository
	Storage ports.ObjectStorage
	// Queue is set when enrichment is dispatched over NATS.
	Queue *nats.Queue

	UploadUC  *usecase.UploadBookUseCase
	EnrichUC  *usecase.EnrichBookUseCase
	LibraryUC *usecase.LibraryUseCase

	HTTPMetrics       *metrics.HTTPServerMetrics
	EnrichmentMetrics *metrics.EnrichmentMetrics

	localDispatcher *local.Dispatcher
	closers         []func() error
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg}

	repo, err := app.openRepository(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Repo = repo

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	app.Storage = storage

	executor := resilience.NewExecutor(ResilienceConfig(cfg))
	model, err := NewAnalysisModel(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init analysis model: %w", err)
	}

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	app.EnrichmentMetrics = metrics.NewEnrichmentMetrics(service, app.HTTPMetrics.Registry())

	runs := usecase.NewRunRegistry()
	segmenter := segmentation.NewSegmenter()
	analyzer := usecase.NewAnalyzer(model, cfg.AnalysisTimeout)
	app.EnrichUC = usecase.NewEnrichBookUseCase(
		repo,
		storage,
		segmenter,
		analyzer,
		analyzer,
		runs,
		usecase.EnrichOptions{
			Concurrency: cfg.EnrichConcurrency,
			Observer:    app.EnrichmentMetrics,
		},
	)

	var dispatcher ports.EnrichmentDispatcher
	switch cfg.EnrichDispatch {
	case config.DispatchNATS:
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, func() error {
			queue.Close()
			return nil
		})
		dispatcher = queue
	default:
		app.localDispatcher = local.New(app.EnrichUC, cfg.WorkerJobTimeout)
		dispatcher = app.localDispatcher
	}

	app.UploadUC = usecase.NewUploadBookUseCase(
		repo,
		storage,
		pdftext.NewExtractor(),
		segmenter,
		dispatcher,
		cfg.UploadMaxBytes,
	)
	app.LibraryUC = usecase.NewLibraryUseCase(repo, storage, xlsx.NewExporter(), runs)

	slog.Info("app_initialized",
		"store_driver", cfg.StoreDriver,
		"dispatch", cfg.EnrichDispatch,
		"llm_provider", cfg.LLMProvider,
		"enrich_concurrency", cfg.EnrichConcurrency,
	)
	return app, nil
}

func (a *App) openRepository(ctx context.Context) (ports.BookRepository, error) {
	switch a.Config.StoreDriver {
	case config.StoreBolt:
		store, err := boltdb.Open(a.Config.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := postgres.NewBookRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	}
}

// NewAnalysisModel builds the configured provider behind the structured JSON
// layer. It returns a nil model for LLM_PROVIDER=none.
func NewAnalysisModel(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.AnalysisModel, error) {
	var backend structured.Backend
	switch cfg.LLMProvider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		client, err := openaichat.New(openaichat.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.AnalysisTimeout,
		})
		if err != nil {
			return nil, err
		}
		backend = client
	case config.ProviderGemini:
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		backend = client
	case config.ProviderOllama:
		backend = ollama.New(cfg.OllamaURL, cfg.OllamaModel, cfg.AnalysisTimeout)
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}

	var prompts *structured.Prompts
	if cfg.PromptsFile != "" {
		loaded, err := structured.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}

	model, err := structured.New(backend, structured.Options{
		Prompts:       prompts,
		MaxInputChars: cfg.AnalysisMaxInputChars,
		Executor:      executor,
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

// ResilienceConfig maps env settings onto per-class retry policies. Zero
// values fall back to resilience.DefaultConfig.
func ResilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.LLM.MaxAttempts = cfg.LLMRetryMaxAttempts
	out.LLM.InitialBackoff = cfg.LLMRetryInitialBackoff
	out.LLM.MaxBackoff = cfg.LLMRetryMaxBackoff
	out.Publish.MaxAttempts = cfg.QueueRetryMaxAttempts
	out.Publish.MaxBackoff = cfg.QueueRetryMaxBackoff
	out.Publish.Budget = cfg.QueueRetryBudget
	out.Breaker.Enabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.Breaker.MinRequests = uint32(cfg.BreakerMinRequests)
	}
	out.Breaker.FailureRatio = cfg.BreakerFailureRatio
	out.Breaker.OpenTimeout = cfg.BreakerOpenTimeout
	return out
}

// Shutdown waits for in-process enrichment runs, then releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.localDispatcher != nil {
		err = a.localDispatcher.Shutdown(ctx)
	}
	a.Close()
	return err
}

func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("app_close_failed", "error", err)
	}
}
