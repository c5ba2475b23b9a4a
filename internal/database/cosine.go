package database

import (
	"cmp"
	"math"
	"slices"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical); 0 for invalid input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	return max(-1, min(1, similarity))
}

// CosineDistance is 1 - cosine similarity, in [0, 2].
// Returns 2.0 (maximum distance) for invalid input or zero vectors.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || isZero(a) || isZero(b) {
		return 2.0
	}
	return 1 - CosineSimilarity(a, b)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// SortMatches orders matches by descending similarity, then ascending photo ID.
func SortMatches(matches []Match) {
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.PhotoID, b.PhotoID)
	})
}
