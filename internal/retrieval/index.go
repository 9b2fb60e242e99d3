// Package retrieval ranks historical deviations by embedding similarity
// and hydrates the hits into prompt context.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/metrics"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// Document is one text to be indexed under a caller-supplied id.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Searcher is the two-operation contract callers depend on. A brute-force
// Index implements it today; an ANN structure can replace it without touching callers.
type Searcher interface {
	Add(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, topK int) ([]domain.SimilarityMatch, error)
}

// Index is a brute-force cosine similarity index over an append-only store.
// Writers are serialized; queries scan an immutable snapshot and may run concurrently with Add.
type Index struct {
	embedder port.Embedder
	store    port.IndexStore

	writeMu sync.Mutex // serializes Add

	mu        sync.RWMutex
	records   []domain.IndexedRecord
	norms     []float64
	ids       map[string]struct{}
	dimension int
}

// NewIndex creates an empty index. Call Load to pick up records already in the store.
func NewIndex(embedder port.Embedder, store port.IndexStore) *Index {
	return &Index{
		embedder: embedder,
		store:    store,
		ids:      make(map[string]struct{}),
	}
}

// Load rebuilds the in-memory scan set from the backing store.
func (ix *Index) Load(ctx context.Context) error {
	records, err := ix.store.Scan(ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	// Build the snapshot aside; a rejected load leaves the current one in place.
	loaded := make([]domain.IndexedRecord, 0, len(records))
	norms := make([]float64, 0, len(records))
	ids := make(map[string]struct{}, len(records))
	dimension := 0
	for _, r := range records {
		if dimension == 0 {
			dimension = len(r.Vector)
		} else if len(r.Vector) != dimension {
			return fmt.Errorf("load index: record %s: %w", r.ID, port.ErrDimensionChanged)
		}
		loaded = append(loaded, r)
		norms = append(norms, squaredNorm(r.Vector))
		ids[r.ID] = struct{}{}
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Fresh slices: queries may still hold the previous snapshot.
	ix.records, ix.norms, ix.ids, ix.dimension = loaded, norms, ids, dimension
	metrics.IndexRecords.Set(float64(len(ix.records)))
	slog.Info("similarity index loaded", "records", len(ix.records), "dimension", ix.dimension)
	return nil
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Add embeds all texts in one batch and appends them. Any id already indexed,
// or repeated inside docs, fails the whole batch with a *port.DuplicateIDError.
func (ix *Index) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	if err := ix.checkIDs(docs); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return &port.ProviderError{Provider: "embedder", Op: "embed batch",
			Err: fmt.Errorf("got %d vectors for %d texts", len(vectors), len(docs))}
	}

	dimension := ix.currentDimension()
	records := make([]domain.IndexedRecord, len(docs))
	for i, d := range docs {
		if dimension == 0 {
			dimension = len(vectors[i])
		}
		if len(vectors[i]) != dimension {
			return fmt.Errorf("document %s: %w: want %d, got %d", d.ID, port.ErrDimensionChanged, dimension, len(vectors[i]))
		}
		records[i] = domain.IndexedRecord{
			ID:       d.ID,
			Text:     d.Text,
			Vector:   vectors[i],
			Metadata: copyMetadata(d.Metadata),
		}
	}

	if err := ix.store.Append(ctx, records); err != nil {
		return fmt.Errorf("append records: %w", err)
	}

	ix.mu.Lock()
	for _, r := range records {
		ix.records = append(ix.records, r)
		ix.norms = append(ix.norms, squaredNorm(r.Vector))
		ix.ids[r.ID] = struct{}{}
	}
	ix.dimension = dimension
	total := len(ix.records)
	ix.mu.Unlock()

	metrics.IndexRecords.Set(float64(total))
	slog.Debug("indexed documents", "count", len(records), "total", total)
	return nil
}

func (ix *Index) checkIDs(docs []Document) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	batch := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, ok := ix.ids[d.ID]; ok {
			return &port.DuplicateIDError{ID: d.ID}
		}
		if _, ok := batch[d.ID]; ok {
			return &port.DuplicateIDError{ID: d.ID}
		}
		batch[d.ID] = struct{}{}
	}
	return nil
}

func (ix *Index) currentDimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

type scored struct {
	pos   int
	score float64
}

// Query returns up to topK records ordered by descending cosine similarity.
// Equal scores keep insertion order. An empty index returns no matches.
func (ix *Index) Query(ctx context.Context, text string, topK int) ([]domain.SimilarityMatch, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", port.ErrInvalidTopK, topK)
	}
	start := time.Now()
	defer func() { metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()

	// Records are append-only, so a slice header taken under the lock stays valid.
	ix.mu.RLock()
	records, norms, dimension := ix.records, ix.norms, ix.dimension
	ix.mu.RUnlock()

	if len(records) == 0 {
		return []domain.SimilarityMatch{}, nil
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, &port.ProviderError{Provider: "embedder", Op: "embed query",
			Err: fmt.Errorf("got %d vectors for 1 text", len(vectors))}
	}
	query := vectors[0]
	if len(query) != dimension {
		return nil, fmt.Errorf("query: %w: want %d, got %d", port.ErrDimensionChanged, dimension, len(query))
	}
	queryNorm := squaredNorm(query)

	hits := make([]scored, len(records))
	for i, r := range records {
		hits[i] = scored{pos: i, score: cosine(query, r.Vector, queryNorm, norms[i])}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	matches := make([]domain.SimilarityMatch, topK)
	for i, h := range hits[:topK] {
		r := records[h.pos]
		matches[i] = domain.SimilarityMatch{
			RecordID: r.ID,
			Score:    h.score,
			Text:     r.Text,
			Metadata: copyMetadata(r.Metadata),
		}
	}
	return matches, nil
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
