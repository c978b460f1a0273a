// Package ranker orders embedded chunks by similarity to a query vector.
// Pure business logic - stateless and side-effect free.
package ranker

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/opschat/opschat-go/internal/domain/entities"
)

// Caller errors, rejected before any scoring happens.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidTopK       = errors.New("top-k must not be negative")
)

// Rank scores every candidate against the query embedding and returns the
// top k results in descending score order. Ties keep the original
// candidate order (stable sort), so a fixed input order gives a fixed
// output order. Returns min(k, len(candidates)) results.
func Rank(query []float64, candidates []entities.Chunk, k int) ([]entities.SearchResult, error) {
	if k < 0 {
		return nil, fmt.Errorf("ranker: %w (got %d)", ErrInvalidTopK, k)
	}

	results := make([]entities.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) != len(query) {
			return nil, fmt.Errorf("ranker: %w: query has %d dimensions, chunk %d has %d",
				ErrDimensionMismatch, len(query), c.ID, len(c.Embedding))
		}
		results = append(results, entities.SearchResult{
			Chunk: c,
			Score: CosineSimilarity(query, c.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// CosineSimilarity calculates cosine similarity between two vectors of the
// same length. A zero-magnitude vector scores 0.0 against anything; the
// result is never NaN.
func CosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
