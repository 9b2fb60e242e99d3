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

// BrainstormHandler handles root cause and CAPA brainstorming.
type BrainstormHandler struct {
	brainstorm *service.BrainstormService
	tracker    *JobTracker
}

// NewBrainstormHandler creates a new brainstorming handler.
func NewBrainstormHandler(brainstorm *service.BrainstormService, tracker *JobTracker) *BrainstormHandler {
	return &BrainstormHandler{brainstorm: brainstorm, tracker: tracker}
}

// Register sets up brainstorming routes.
func (h *BrainstormHandler) Register(router fiber.Router) {
	b := router.Group("/brainstorming")
	b.Post("/", h.Brainstorm)
	b.Post("/jobs", h.StartJob)
}

// Brainstorm runs the flow synchronously.
func (h *BrainstormHandler) Brainstorm(c fiber.Ctx) error {
	var input map[string]string
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "invalid request body")
	}
	middleware.SetAuditAction(c, domain.AuditActionBrainstorm, "")

	result, err := h.brainstorm.Brainstorm(c.Context(), input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// StartJob accepts a brainstorming job and returns 202 immediately.
// Progress is available through the jobs endpoints.
func (h *BrainstormHandler) StartJob(c fiber.Ctx) error {
	var input map[string]string
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "invalid request body")
	}
	if input[domain.ProblemDescriptionField] == "" {
		return badRequest(c, "missing field: "+domain.ProblemDescriptionField)
	}

	jobID := uuid.New().String()
	middleware.SetAuditAction(c, domain.AuditActionBrainstorm, jobID)
	h.tracker.CreateJob(jobID, "brainstorming")

	// Run in background; no HTTP connection held
	go func() {
		result, err := h.brainstorm.Brainstorm(context.Background(), input, h.tracker.Observer(jobID))
		if err != nil {
			slog.Error("brainstorming job failed", "job_id", jobID, "error", err)
		}
		h.tracker.Finish(jobID, result, err)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  jobID,
		"message": "brainstorming started",
	})
}
