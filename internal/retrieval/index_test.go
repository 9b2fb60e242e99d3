package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/go-deviation-rag/internal/adapter/store"
	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/testutil"
)

var vocabulary = []string{
	"temperature", "excursion", "deviation", "sensor", "failure",
	"supplier", "material", "defect", "equipment", "overheated",
}

func newTestIndex(t *testing.T) (*Index, *testutil.KeywordEmbedder) {
	t.Helper()
	emb := testutil.NewKeywordEmbedder(vocabulary...)
	return NewIndex(emb, store.NewMemoryIndexStore()), emb
}

func TestQueryEmptyIndex(t *testing.T) {
	ix, emb := newTestIndex(t)

	matches, err := ix.Query(context.Background(), "temperature deviation", 5)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
	assert.Zero(t, emb.Calls(), "empty index should not embed the query")
}

func TestQueryRejectsNonPositiveTopK(t *testing.T) {
	ix, _ := newTestIndex(t)
	for _, k := range []int{0, -1} {
		_, err := ix.Query(context.Background(), "x", k)
		assert.ErrorIs(t, err, port.ErrInvalidTopK)
	}
}

func TestAddThenQueryIdenticalText(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, []Document{{ID: "x1", Text: "equipment overheated"}}))

	matches, err := ix.Query(ctx, "equipment overheated", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "x1", matches[0].RecordID)
	assert.Equal(t, 1.0, matches[0].Score)
	assert.Equal(t, "equipment overheated", matches[0].Text)
}

func TestQueryTemperatureScenario(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, []Document{
		{ID: "r1", Text: "temperature excursion"},
		{ID: "r2", Text: "supplier material defect"},
		{ID: "r3", Text: "temperature sensor failure"},
	}))

	matches, err := ix.Query(ctx, "temperature deviation", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.ElementsMatch(t, []string{"r1", "r3"}, []string{matches[0].RecordID, matches[1].RecordID})

	all, err := ix.Query(ctx, "temperature deviation", 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[2].RecordID)
	assert.Greater(t, all[1].Score, all[2].Score)
}

func TestAddRejectsDuplicateIDs(t *testing.T) {
	ix, emb := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, []Document{{ID: "a", Text: "temperature"}}))
	callsBefore := emb.Calls()

	err := ix.Add(ctx, []Document{{ID: "b", Text: "sensor"}, {ID: "a", Text: "failure"}})
	var dup *port.DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.ID)
	assert.Equal(t, callsBefore, emb.Calls(), "duplicate batch must fail before embedding")

	err = ix.Add(ctx, []Document{{ID: "c", Text: "x"}, {ID: "c", Text: "y"}})
	assert.ErrorIs(t, err, port.ErrDuplicateID)
	assert.Equal(t, 1, ix.Len())
}

func TestAddPropagatesProviderError(t *testing.T) {
	ix, emb := newTestIndex(t)
	emb.Err = errors.New("connection refused")

	err := ix.Add(context.Background(), []Document{{ID: "a", Text: "temperature"}})
	assert.ErrorIs(t, err, port.ErrProvider)
	assert.Zero(t, ix.Len())
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, []Document{
		{ID: "first", Text: "sensor"},
		{ID: "second", Text: "sensor"},
	}))
	require.NoError(t, ix.Add(ctx, []Document{{ID: "third", Text: "sensor"}}))

	matches, err := ix.Query(ctx, "sensor", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{matches[0].RecordID, matches[1].RecordID, matches[2].RecordID})
}

func TestQueryZeroVectorScoresMinusOne(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	// "unrelated words" has no vocabulary hit and embeds to the zero vector.
	require.NoError(t, ix.Add(ctx, []Document{
		{ID: "zero", Text: "unrelated words"},
		{ID: "hit", Text: "temperature"},
	}))

	matches, err := ix.Query(ctx, "temperature", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "hit", matches[0].RecordID)
	assert.Equal(t, "zero", matches[1].RecordID)
	assert.Equal(t, -1.0, matches[1].Score)
}

func TestQueryRankingAndTopKBound(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	dim := 8
	vectors := testutil.StaticEmbedder{}
	var docs []Document
	for i := 0; i < 40; i++ {
		v := make([]float32, dim)
		for d := range v {
			v[d] = float32(r.NormFloat64())
		}
		text := fmt.Sprintf("doc-%d", i)
		vectors[text] = v
		docs = append(docs, Document{ID: text, Text: text})
	}
	ix := NewIndex(vectors, store.NewMemoryIndexStore())
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, docs))

	for _, k := range []int{1, 5, 40, 100} {
		matches, err := ix.Query(ctx, "doc-7", k)
		require.NoError(t, err)
		assert.Len(t, matches, min(k, len(docs)))
		assert.Equal(t, "doc-7", matches[0].RecordID)
		assert.Equal(t, 1.0, matches[0].Score)
		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
			assert.GreaterOrEqual(t, matches[i].Score, -1.0)
			assert.LessOrEqual(t, matches[i].Score, 1.0)
		}
	}
}

func TestLoadRebuildsFromStore(t *testing.T) {
	backing := store.NewMemoryIndexStore()
	emb := testutil.NewKeywordEmbedder(vocabulary...)
	ctx := context.Background()

	first := NewIndex(emb, backing)
	require.NoError(t, first.Add(ctx, []Document{
		{ID: "a", Text: "temperature excursion", Metadata: map[string]string{"summary_id": "DEV-1"}},
	}))

	second := NewIndex(emb, backing)
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, 1, second.Len())

	matches, err := second.Query(ctx, "temperature excursion", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "DEV-1", matches[0].Metadata["summary_id"])

	err = second.Add(ctx, []Document{{ID: "a", Text: "again"}})
	assert.ErrorIs(t, err, port.ErrDuplicateID)
}

func TestConcurrentAddAndQuery(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, []Document{{ID: "seed", Text: "temperature"}}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = ix.Add(ctx, []Document{{ID: fmt.Sprintf("w-%d", i), Text: "sensor failure"}})
		}()
		go func() {
			defer wg.Done()
			matches, err := ix.Query(ctx, "temperature", 3)
			assert.NoError(t, err)
			assert.NotEmpty(t, matches)
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, ix.Len())
}

func TestLoadRejectsMixedDimensionsAndKeepsSnapshot(t *testing.T) {
	backing := store.NewMemoryIndexStore()
	emb := testutil.StaticEmbedder{"cold room": {1, 0}}
	ctx := context.Background()

	ix := NewIndex(emb, backing)
	require.NoError(t, ix.Add(ctx, []Document{{ID: "a", Text: "cold room"}}))

	// A foreign writer leaves a record of another dimension in the store.
	require.NoError(t, backing.Append(ctx, []domain.IndexedRecord{{ID: "b", Text: "other", Vector: []float32{1, 0, 0}}}))

	err := ix.Load(ctx)
	assert.ErrorIs(t, err, port.ErrDimensionChanged)
	assert.Equal(t, 1, ix.Len())

	matches, err := ix.Query(ctx, "cold room", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].RecordID)
	assert.Equal(t, 1.0, matches[0].Score)

	err = ix.Add(ctx, []Document{{ID: "a", Text: "cold room"}})
	assert.ErrorIs(t, err, port.ErrDuplicateID, "ids of the kept snapshot stay registered")
}
