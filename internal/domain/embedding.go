package domain

// IndexedRecord is a text and its vector as held by the similarity index.
// Records are append-only; an index is only cleared by a full rebuild.
type IndexedRecord struct {
	ID       string            `json:"id"       db:"id"`
	Text     string            `json:"text"     db:"text"`
	Vector   []float32         `json:"-"        db:"vector"`
	Metadata map[string]string `json:"metadata" db:"metadata"`
	Seq      int64             `json:"-"        db:"seq"` // insertion order, used to break score ties
}

// SimilarityMatch is one ranked hit returned by a similarity query.
type SimilarityMatch struct {
	RecordID string            `json:"record_id"`
	Score    float64           `json:"score"` // cosine similarity in [-1, 1]
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryMatches pairs an input query with its ranked matches.
type QueryMatches struct {
	Query   string            `json:"query"`
	Matches []SimilarityMatch `json:"matches"`
}

// Metadata keys written by ingestion.
const (
	MetaSummaryID     = "summary_id"
	MetaQuestion      = "question"
	MetaQuestionIndex = "question_index"
)
