package memory

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	length := min(len(a), len(b))
	for i := range length {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CheckDimension returns ErrDimensionMismatch when the vector length
// differs from want. A zero want accepts any length.
func CheckDimension(want int, vec []float32) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, collection uses %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// RankResults sorts results by descending score, breaking ties by creation
// order, and truncates to limit.
func RankResults(results []Result, limit int) []Result {
	if limit <= 0 {
		return []Result{}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.Record.CreatedAt.Compare(b.Record.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		return []Result{}
	}
	return results
}

// OverFetch returns how many candidates to request from an index when a
// filter is applied client side. The result saturates at math.MaxInt.
func OverFetch(limit int, f *Filter) int {
	if f.IsZero() || limit <= 0 {
		return limit
	}
	if limit > math.MaxInt/2 {
		return math.MaxInt
	}
	return limit * 2
}
