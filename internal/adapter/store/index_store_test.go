package store

import (
	"context"
	"testing"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexStores(t *testing.T) map[string]port.IndexStore {
	t.Helper()
	sqlite, err := NewSQLiteIndexStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]port.IndexStore{
		"memory": NewMemoryIndexStore(),
		"sqlite": sqlite,
	}
}

func record(id, text string, vec ...float32) domain.IndexedRecord {
	return domain.IndexedRecord{
		ID:       id,
		Text:     text,
		Vector:   vec,
		Metadata: map[string]string{domain.MetaSummaryID: "DEV-" + id},
	}
}

func TestIndexStoreAppendScan(t *testing.T) {
	for name, s := range indexStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := s.Scan(ctx)
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, s.Append(ctx, []domain.IndexedRecord{
				record("a", "first", 1, 0),
				record("b", "second", 0, 1),
			}))
			require.NoError(t, s.Append(ctx, []domain.IndexedRecord{record("c", "third", 0.5, 0.5)}))

			got, err := s.Scan(ctx)
			require.NoError(t, err)
			require.Len(t, got, 3)

			assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
			assert.Equal(t, []float32{0.5, 0.5}, got[2].Vector)
			assert.Equal(t, "DEV-b", got[1].Metadata[domain.MetaSummaryID])
			assert.Less(t, got[0].Seq, got[1].Seq)
			assert.Less(t, got[1].Seq, got[2].Seq)
		})
	}
}

func TestIndexStoreRejectsDuplicates(t *testing.T) {
	for name, s := range indexStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, []domain.IndexedRecord{record("a", "first", 1)}))

			err := s.Append(ctx, []domain.IndexedRecord{record("b", "new", 1), record("a", "again", 1)})
			require.Error(t, err)
			assert.ErrorIs(t, err, port.ErrDuplicateID)

			var dup *port.DuplicateIDError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, "a", dup.ID)

			// The rejected batch leaves no partial writes behind.
			got, err := s.Scan(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "first", got[0].Text)
		})
	}
}

func TestIndexStoreRejectsDuplicatesInsideBatch(t *testing.T) {
	for name, s := range indexStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Append(context.Background(), []domain.IndexedRecord{record("x", "one", 1), record("x", "two", 1)})
			assert.ErrorIs(t, err, port.ErrDuplicateID)
		})
	}
}

func TestSQLiteOtherErrorsAreNotDuplicates(t *testing.T) {
	s, err := NewSQLiteIndexStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(context.Background(), []domain.IndexedRecord{record("a", "first", 1)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrDuplicateID)
}
