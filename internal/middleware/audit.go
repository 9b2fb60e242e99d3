package middleware

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/utils/v2"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
)

// ActorHeader names the caller for the audit trail. Requests without it are anonymous.
const ActorHeader = "X-Actor"

const (
	localAuditAction   = "audit_action"
	localAuditResource = "audit_resource_id"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(actor, action, resource, resourceID, details, ip, userAgent string) error
}

// SetAuditAction lets a handler label its request with a domain action and resource.
func SetAuditAction(c fiber.Ctx, action, resourceID string) {
	c.Locals(localAuditAction, action)
	c.Locals(localAuditResource, resourceID)
}

// Actor returns the caller name for c.
func Actor(c fiber.Ctx) string {
	if a := c.Get(ActorHeader); a != "" {
		return a
	}
	return "anonymous"
}

// AuditMiddleware records every request for GMP traceability.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Fiber strings alias request buffers that are reused once the handler
		// returns; everything handed to the writer goroutine is copied.
		method := utils.CopyString(c.Method())
		path := utils.CopyString(c.Path())
		ip := utils.CopyString(c.IP())
		userAgent := utils.CopyString(c.Get("User-Agent"))
		actor := utils.CopyString(Actor(c))

		err := c.Next()

		action := domain.AuditActionHTTPRequest
		resourceID := path
		if a, ok := c.Locals(localAuditAction).(string); ok && a != "" {
			action = utils.CopyString(a)
			if id, ok := c.Locals(localAuditResource).(string); ok && id != "" {
				resourceID = utils.CopyString(id)
			}
		}

		details := map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		detailsJSON, _ := json.Marshal(details)

		go func() {
			if writeErr := writer.WriteAudit(
				actor,
				action,
				"api",
				resourceID,
				string(detailsJSON),
				ip,
				userAgent,
			); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}
