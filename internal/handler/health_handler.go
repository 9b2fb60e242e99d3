package handler

import "github.com/gofiber/fiber/v3"

// HealthHandler reports liveness and basic index state.
type HealthHandler struct {
	appName string
	model   string
	records func() int
}

// NewHealthHandler creates a health handler. records reports the index size.
func NewHealthHandler(appName, model string, records func() int) *HealthHandler {
	return &HealthHandler{appName: appName, model: model, records: records}
}

// Register sets up the health route.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
}

// Health returns service status.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "ok",
		"app":           h.appName,
		"model":         h.model,
		"index_records": h.records(),
	})
}
