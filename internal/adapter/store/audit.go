package store

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
)

// MemoryAuditStore keeps the most recent audit entries in a ring and mirrors
// each one to the structured log. It backs the audit trail when no database is configured.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
	next    int
	full    bool
	seq     int
}

// NewMemoryAuditStore keeps at most capacity entries.
func NewMemoryAuditStore(capacity int) *MemoryAuditStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditStore{entries: make([]domain.AuditLog, capacity)}
}

// WriteAudit implements middleware.AuditWriter.
func (s *MemoryAuditStore) WriteAudit(actor, action, resource, resourceID, details, ip, userAgent string) error {
	slog.Info("audit", "actor", actor, "action", action, "resource", resource, "resource_id", resourceID, "details", details)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries[s.next] = domain.AuditLog{
		ID:         strconv.Itoa(s.seq),
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  time.Now().UTC(),
	}
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// ListAuditLogs returns entries newest first, optionally filtered by action.
func (s *MemoryAuditStore) ListAuditLogs(_ context.Context, limit int, action string) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.entries)
	}
	logs := []domain.AuditLog{}
	for i := 0; i < n; i++ {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		e := s.entries[idx]
		if action != "" && e.Action != action {
			continue
		}
		logs = append(logs, e)
		if limit > 0 && len(logs) == limit {
			break
		}
	}
	return logs, nil
}
