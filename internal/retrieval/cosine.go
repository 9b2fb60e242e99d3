package retrieval

import "math"

// cosine returns dot(a,b) / (|a|·|b|) given the squared norms of both vectors.
// A zero-magnitude side yields -1 so degenerate embeddings rank last.
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return -1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	// sqrt(x*x) == x in IEEE arithmetic, so identical vectors score exactly 1.
	score := dot / math.Sqrt(normA*normB)
	switch {
	case math.IsNaN(score):
		return -1
	case score > 1:
		return 1
	case score < -1:
		return -1
	}
	return score
}

// squaredNorm returns the sum of squares of v.
func squaredNorm(v []float32) float64 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	return n
}
