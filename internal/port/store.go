package port

import (
	"context"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
)

// IndexStore is the backing collection of the similarity index.
// It only needs to support append and full scan.
type IndexStore interface {
	// Append persists records in order. It fails with ErrDuplicateID when an id exists.
	Append(ctx context.Context, records []domain.IndexedRecord) error

	// Scan returns every stored record in insertion order.
	Scan(ctx context.Context) ([]domain.IndexedRecord, error)
}

// RecordStore is the key-value store holding raw deviation content.
type RecordStore interface {
	// Get returns the record for id, or ErrRecordNotFound.
	Get(ctx context.Context, id string) (*domain.DeviationRecord, error)

	// Put persists a new record at ingestion time.
	Put(ctx context.Context, record *domain.DeviationRecord) error
}

// AuditStore persists and lists audit trail entries.
type AuditStore interface {
	WriteAudit(actor, action, resource, resourceID, details, ip, userAgent string) error
	ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error)
}
