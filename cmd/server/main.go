package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturoeanton/go-deviation-rag/internal/app"
	"github.com/arturoeanton/go-deviation-rag/internal/handler"
	"github.com/arturoeanton/go-deviation-rag/internal/mcp"
	"github.com/arturoeanton/go-deviation-rag/internal/middleware"
	"github.com/arturoeanton/go-deviation-rag/pkg/config"
)

// Synchronous pipeline endpoints hold the connection for the whole run.
const writeTimeout = 15 * time.Minute

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("🚀 Starting Deviation Assistant",
		"port", cfg.Port,
		"ollama_embed", cfg.OllamaEmbedURL,
		"ollama_chat", cfg.OllamaChatURL,
		"llm_provider", cfg.LLMProvider,
		"index_backend", cfg.IndexBackend,
		"record_backend", cfg.RecordBackend,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Adapters and services ────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	// ── Fiber App ────────────────────────────────────────────────────────
	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
	})

	// Global middleware
	server.Use(recover.New())
	server.Use(fiberlogger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", middleware.ActorHeader},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	server.Use(middleware.AuditMiddleware(deps.Audit))

	server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ── Routes ───────────────────────────────────────────────────────────
	api := server.Group("/api/v1")

	jobTracker := handler.NewJobTracker()

	handler.NewHealthHandler(cfg.AppName, deps.Model, deps.Index.Len).Register(api)
	handler.NewDeviationHandler(deps.Ingest).Register(api)
	handler.NewSimilarHandler(deps.Similarity, cfg.SimilarityTopK).Register(api)
	handler.NewBrainstormHandler(deps.Brainstorm, jobTracker).Register(api)
	handler.NewGenerationHandler(deps.Generation, jobTracker).Register(api)
	handler.NewJobsHandler(jobTracker).Register(api)
	handler.NewAuditHandler(deps.Audit).Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(deps.Similarity, deps.Ingest, deps.Brainstorm, deps.Audit, cfg.SimilarityTopK, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		_ = server.Shutdown()
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := server.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
