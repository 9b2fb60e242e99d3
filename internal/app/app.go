// Package app wires configuration into adapters and services. It is shared
// by the HTTP server and the devctl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturoeanton/go-deviation-rag/internal/adapter/ai"
	"github.com/arturoeanton/go-deviation-rag/internal/adapter/cache"
	"github.com/arturoeanton/go-deviation-rag/internal/adapter/store"
	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/prompts"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
	"github.com/arturoeanton/go-deviation-rag/internal/service"
	"github.com/arturoeanton/go-deviation-rag/pkg/config"
)

const systemPrompt = `You are a GMP deviation analyst for a pharmaceutical quality unit.
Answer strictly from the provided context, in professional regulatory language.`

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	Embedder  port.Embedder
	Completer port.Completer
	Model     string

	Index   *retrieval.Index
	Records port.RecordStore
	Audit   port.AuditStore
	Catalog *prompts.Catalog

	Scheduler  *pipeline.Scheduler
	Similarity *retrieval.SimilarityService
	Brainstorm *service.BrainstormService
	Generation *service.GenerationService
	Ingest     *service.IngestService

	closers []func() error
}

// New builds the application from cfg and loads the similarity index.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	// ── AI providers ─────────────────────────────────────────────────────
	ollama := ai.NewOllamaProvider(
		ai.OllamaEndpointConfig{
			BaseURL: cfg.OllamaEmbedURL,
			Model:   cfg.OllamaEmbedModel,
			Token:   cfg.OllamaEmbedToken,
		},
		ai.OllamaEndpointConfig{
			BaseURL: cfg.OllamaChatURL,
			Model:   cfg.OllamaChatModel,
			Token:   cfg.OllamaChatToken,
		},
		systemPrompt,
		cfg.LLMTimeout(),
	)
	a.Embedder = ollama
	a.Completer = ollama
	a.Model = ollama.ModelName()
	if cfg.LLMProvider == config.ProviderCustom {
		a.Completer = ai.NewCustomLLM(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMMaxTokens, cfg.LLMTimeout())
		a.Model = config.ProviderCustom
	}

	// ── Prompt catalog ───────────────────────────────────────────────────
	catalog, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	a.Catalog = catalog

	// ── Index store ──────────────────────────────────────────────────────
	indexStore, err := a.indexStore()
	if err != nil {
		return err
	}
	a.Index = retrieval.NewIndex(a.Embedder, indexStore)
	if err := a.Index.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	// ── Record store ─────────────────────────────────────────────────────
	switch cfg.RecordBackend {
	case config.BackendRedis:
		redisStore, err := cache.NewRedisRecordStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, redisStore.Close)
		if err := redisStore.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.Records = redisStore
	default:
		a.Records = cache.NewMemoryRecordStore()
	}
	if a.Audit == nil {
		a.Audit = store.NewMemoryAuditStore(1000)
	}

	// ── Services ─────────────────────────────────────────────────────────
	a.Scheduler = pipeline.NewScheduler(cfg.PipelineWorkers, cfg.TaskTimeout())
	a.Similarity = retrieval.NewSimilarityService(a.Index, cfg.SimilarityWorkers)
	a.Brainstorm = service.NewBrainstormService(
		a.Completer,
		a.Similarity,
		retrieval.NewContextAssembler(a.Records),
		a.Catalog,
		a.Scheduler,
		cfg.SimilarityTopK,
	)
	a.Generation = service.NewGenerationService(a.Completer, a.Catalog, a.Scheduler)
	a.Ingest = service.NewIngestService(a.Completer, a.Index, a.Records, a.Catalog, a.Scheduler)

	slog.Info("application ready",
		"index_backend", cfg.IndexBackend,
		"record_backend", cfg.RecordBackend,
		"llm_provider", cfg.LLMProvider,
		"index_records", a.Index.Len(),
	)
	return nil
}

// indexStore opens the configured backend. Postgres also serves the audit trail.
func (a *App) indexStore() (port.IndexStore, error) {
	cfg := a.Config
	switch cfg.IndexBackend {
	case config.BackendPostgres:
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres %s: %w", cfg.DSN(), err)
		}
		a.closers = append(a.closers, pg.Close)
		a.Audit = pg
		return store.NewVectorStore(pg), nil
	case config.BackendSQLite:
		lite, err := store.NewSQLiteIndexStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, lite.Close)
		return lite, nil
	default:
		return store.NewMemoryIndexStore(), nil
	}
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
