package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrInvalidTopK), errors.Is(err, port.ErrMissingField):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrDuplicateID):
		return fiber.StatusConflict
	case errors.Is(err, port.ErrProvider):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func respondError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
