package middleware

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
)

type auditEntry struct {
	actor, action, resource, resourceID, details, ip, userAgent string
}

type recordingWriter struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (w *recordingWriter) WriteAudit(actor, action, resource, resourceID, details, ip, userAgent string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, auditEntry{actor, action, resource, resourceID, details, ip, userAgent})
	return nil
}

func (w *recordingWriter) snapshot() []auditEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]auditEntry(nil), w.entries...)
}

func newAuditApp(w AuditWriter) *fiber.App {
	app := fiber.New()
	app.Use(AuditMiddleware(w))
	app.Get("/items/:id", func(c fiber.Ctx) error {
		SetAuditAction(c, "item_lookup", c.Params("id"))
		return c.SendString("ok")
	})
	app.Get("/plain", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuditMiddlewareKeepsRequestValues(t *testing.T) {
	w := &recordingWriter{}
	app := newAuditApp(w)

	const n = 50
	for i := 0; i < n; i++ {
		req := httptest.NewRequest("GET", fmt.Sprintf("/items/id-%d", i), nil)
		req.Header.Set(ActorHeader, fmt.Sprintf("actor-%d", i))
		req.Header.Set("User-Agent", fmt.Sprintf("agent-%d", i))
		resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Eventually(t, func() bool { return len(w.snapshot()) == n }, 2*time.Second, 10*time.Millisecond)

	for _, e := range w.snapshot() {
		var i int
		_, err := fmt.Sscanf(e.resourceID, "id-%d", &i)
		require.NoError(t, err, "resource id %q", e.resourceID)
		assert.Equal(t, "item_lookup", e.action)
		assert.Equal(t, fmt.Sprintf("actor-%d", i), e.actor)
		assert.Equal(t, fmt.Sprintf("agent-%d", i), e.userAgent)

		var details map[string]any
		require.NoError(t, json.Unmarshal([]byte(e.details), &details))
		assert.Equal(t, fmt.Sprintf("/items/id-%d", i), details["path"])
		assert.Equal(t, "GET", details["method"])
	}
}

func TestAuditMiddlewareDefaults(t *testing.T) {
	w := &recordingWriter{}
	app := newAuditApp(w)

	resp, err := app.Test(httptest.NewRequest("GET", "/plain", nil), fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	e := w.snapshot()[0]
	assert.Equal(t, "anonymous", e.actor)
	assert.Equal(t, domain.AuditActionHTTPRequest, e.action)
	assert.Equal(t, "/plain", e.resourceID)
	assert.Contains(t, e.details, `"status":204`)
}
