package database

import (
	"errors"
	"time"
)

// ErrEmptyIndex is returned by VectorIndex.Query when no vectors are stored.
var ErrEmptyIndex = errors.New("vector index is empty")

// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// StoredEmbedding represents an embedding stored in the vector index
type StoredEmbedding struct {
	PhotoID   string
	Embedding []float32
	Model     string
	Dim       int
	CreatedAt time.Time
}

// Match is one ranked query hit. Similarity is cosine similarity in [-1, 1].
type Match struct {
	PhotoID    string
	Similarity float64
}
