package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// pgUniqueViolation is the SQLSTATE raised on a unique index conflict.
const pgUniqueViolation = "23505"

// VectorStore persists similarity index records in Postgres.
// Vectors are stored as DOUBLE PRECISION[]; scoring happens in the index, not in SQL.
type VectorStore struct {
	store *PostgresStore
}

// NewVectorStore creates a vector store backed by the given Postgres store.
func NewVectorStore(store *PostgresStore) *VectorStore {
	return &VectorStore{store: store}
}

// Append persists a batch of records in one transaction.
func (v *VectorStore) Append(ctx context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deviation_vectors (id, text, vector, metadata) VALUES ($1, $2, $3, $4::jsonb)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(metadataOrEmpty(r.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, pq.Float64Array(toFloat64(r.Vector)), string(meta)); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
				return &port.DuplicateIDError{ID: r.ID}
			}
			return fmt.Errorf("insert vector: %w", err)
		}
	}

	return tx.Commit()
}

// Scan loads every record ordered by insertion.
func (v *VectorStore) Scan(ctx context.Context) ([]domain.IndexedRecord, error) {
	rows, err := v.store.db.QueryContext(ctx,
		`SELECT seq, id, text, vector, metadata::text FROM deviation_vectors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var records []domain.IndexedRecord
	for rows.Next() {
		var (
			r    domain.IndexedRecord
			vec  pq.Float64Array
			meta string
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Text, &vec, &meta); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
		r.Vector = toFloat32(vec)
		records = append(records, r)
	}
	return records, rows.Err()
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
