package store

import (
	"context"
	"sync"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// MemoryIndexStore is a process-local IndexStore. Contents are lost on restart.
type MemoryIndexStore struct {
	mu      sync.RWMutex
	records []domain.IndexedRecord
	ids     map[string]struct{}
}

// NewMemoryIndexStore creates an empty in-memory index store.
func NewMemoryIndexStore() *MemoryIndexStore {
	return &MemoryIndexStore{ids: make(map[string]struct{})}
}

// Append stores records in order. The batch is rejected as a whole on a duplicate id.
func (m *MemoryIndexStore) Append(_ context.Context, records []domain.IndexedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := m.ids[r.ID]; ok {
			return &port.DuplicateIDError{ID: r.ID}
		}
		if _, ok := seen[r.ID]; ok {
			return &port.DuplicateIDError{ID: r.ID}
		}
		seen[r.ID] = struct{}{}
	}

	for _, r := range records {
		r.Seq = int64(len(m.records) + 1)
		m.records = append(m.records, r)
		m.ids[r.ID] = struct{}{}
	}
	return nil
}

// Scan returns a copy of all records in insertion order.
func (m *MemoryIndexStore) Scan(_ context.Context) ([]domain.IndexedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.IndexedRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}
