package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/middleware"
	"github.com/arturoeanton/go-deviation-rag/internal/service"
)

// GenerationHandler handles GMP deviation document generation.
type GenerationHandler struct {
	generation *service.GenerationService
	tracker    *JobTracker
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(generation *service.GenerationService, tracker *JobTracker) *GenerationHandler {
	return &GenerationHandler{generation: generation, tracker: tracker}
}

// Register sets up generation routes.
func (h *GenerationHandler) Register(router fiber.Router) {
	g := router.Group("/gmp-generation")
	g.Post("/", h.Generate)
	g.Post("/jobs", h.StartJob)
}

// Generate drafts the document synchronously.
func (h *GenerationHandler) Generate(c fiber.Ctx) error {
	var input map[string]string
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "invalid request body")
	}
	middleware.SetAuditAction(c, domain.AuditActionGeneration, "")

	result, err := h.generation.Generate(c.Context(), input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// StartJob accepts a generation job and returns 202 immediately.
func (h *GenerationHandler) StartJob(c fiber.Ctx) error {
	var input map[string]string
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(input) == 0 {
		return badRequest(c, "at least one document section is required")
	}

	jobID := uuid.New().String()
	middleware.SetAuditAction(c, domain.AuditActionGeneration, jobID)
	h.tracker.CreateJob(jobID, "gmp-generation")

	go func() {
		result, err := h.generation.Generate(context.Background(), input, h.tracker.Observer(jobID))
		if err != nil {
			slog.Error("generation job failed", "job_id", jobID, "error", err)
		}
		h.tracker.Finish(jobID, result, err)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  jobID,
		"message": "generation started",
	})
}
