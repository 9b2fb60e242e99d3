package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/middleware"
	"github.com/arturoeanton/go-deviation-rag/internal/service"
)

// DeviationHandler handles ingestion and lookup of historical deviations.
type DeviationHandler struct {
	ingest *service.IngestService
}

// NewDeviationHandler creates a new deviation handler.
func NewDeviationHandler(ingest *service.IngestService) *DeviationHandler {
	return &DeviationHandler{ingest: ingest}
}

// Register sets up deviation routes.
func (h *DeviationHandler) Register(router fiber.Router) {
	d := router.Group("/deviations")
	d.Post("/", h.Ingest)
	d.Get("/:id", h.Get)
}

// Ingest stores a historical deviation and indexes its answers.
func (h *DeviationHandler) Ingest(c fiber.Ctx) error {
	var input domain.DeviationInput
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.ingest.Ingest(c.Context(), input)
	if err != nil {
		return respondError(c, err)
	}
	middleware.SetAuditAction(c, domain.AuditActionIngest, result.ID)
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Get returns a stored deviation record.
func (h *DeviationHandler) Get(c fiber.Ctx) error {
	record, err := h.ingest.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(record)
}
