package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deviation_vectors (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	text       TEXT NOT NULL,
	vector     TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteIndexStore is a single-file IndexStore for local and development setups.
type SQLiteIndexStore struct {
	db *sql.DB
}

// NewSQLiteIndexStore opens (or creates) a SQLite database at path.
// Pass ":memory:" for an in-memory store.
func NewSQLiteIndexStore(path string) (*SQLiteIndexStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteIndexStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteIndexStore) Close() error {
	return s.db.Close()
}

// Append persists a batch of records in one transaction.
func (s *SQLiteIndexStore) Append(ctx context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO deviation_vectors (id, text, vector, metadata) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		vec, err := json.Marshal(r.Vector)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		meta, err := json.Marshal(metadataOrEmpty(r.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, string(vec), string(meta)); err != nil {
			if isUniqueViolation(err) {
				return &port.DuplicateIDError{ID: r.ID}
			}
			return fmt.Errorf("insert vector: %w", err)
		}
	}

	return tx.Commit()
}

// Scan loads every record ordered by insertion.
func (s *SQLiteIndexStore) Scan(ctx context.Context) ([]domain.IndexedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, id, text, vector, metadata FROM deviation_vectors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var records []domain.IndexedRecord
	for rows.Next() {
		var (
			r         domain.IndexedRecord
			vec, meta string
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Text, &vec, &meta); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &r.Vector); err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	return errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
