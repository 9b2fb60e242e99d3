package cache

import (
	"context"
	"sync"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// MemoryRecordStore is a map-backed RecordStore.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.DeviationRecord
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]domain.DeviationRecord)}
}

func (m *MemoryRecordStore) Get(_ context.Context, id string) (*domain.DeviationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, port.ErrRecordNotFound
	}
	return &r, nil
}

func (m *MemoryRecordStore) Put(_ context.Context, record *domain.DeviationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = *record
	return nil
}
