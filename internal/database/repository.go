package database

import (
	"context"
)

// VectorIndex stores one embedding per photo and answers nearest-neighbour queries
type VectorIndex interface {
	// Upsert stores the vector for a photo, replacing any previous vector
	Upsert(ctx context.Context, photoID string, vector []float32) error
	// UpsertBatch stores several vectors at once; on error none of them is stored
	UpsertBatch(ctx context.Context, embeddings []StoredEmbedding) error
	// Query returns at most k matches ordered by descending cosine similarity,
	// ties broken by ascending photo ID. Returns ErrEmptyIndex when nothing is stored.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	// Delete removes the vector for a photo; deleting an unknown ID is not an error
	Delete(ctx context.Context, photoID string) error
	// DeleteMany removes the vectors for several photos
	DeleteMany(ctx context.Context, photoIDs []string) error
	// RemoveAll clears the index
	RemoveAll(ctx context.Context) error
	// Count returns the number of stored vectors
	Count(ctx context.Context) (int, error)
	// Has checks if a vector exists for the given photo ID
	Has(ctx context.Context, photoID string) (bool, error)
	// GetUniquePhotoIDs returns all photo IDs that have vectors
	GetUniquePhotoIDs(ctx context.Context) ([]string, error)
}
