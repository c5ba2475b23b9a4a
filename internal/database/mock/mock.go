// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/photo-triage/internal/database"
)

// MockVectorIndex is an exact, map-backed database.VectorIndex with error injection
type MockVectorIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32

	// Error injection; UpsertError also fails batches
	UpsertError    error
	BatchError     error
	QueryError     error
	DeleteError    error
	RemoveAllError error

	// Call counters
	UpsertCalls int
	BatchCalls  int
	QueryCalls  int
	DeleteCalls int

	// vectors passed to Upsert or UpsertBatch
	written int
}

var _ database.VectorIndex = (*MockVectorIndex)(nil)

// NewMockVectorIndex creates an empty mock index
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{vectors: make(map[string][]float32)}
}

// Upsert stores a copy of vector
func (m *MockVectorIndex) Upsert(ctx context.Context, photoID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	m.written++
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.vectors[photoID] = slices.Clone(vector)
	return nil
}

// UpsertBatch stores copies of every vector, or none on an injected error
func (m *MockVectorIndex) UpsertBatch(ctx context.Context, embeddings []database.StoredEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchCalls++
	m.written += len(embeddings)
	if m.BatchError != nil {
		return m.BatchError
	}
	if m.UpsertError != nil {
		return m.UpsertError
	}
	for _, emb := range embeddings {
		m.vectors[emb.PhotoID] = slices.Clone(emb.Embedding)
	}
	return nil
}

// Query ranks every stored vector by exact cosine similarity
func (m *MockVectorIndex) Query(ctx context.Context, vector []float32, k int) ([]database.Match, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	if len(m.vectors) == 0 {
		return nil, database.ErrEmptyIndex
	}

	matches := make([]database.Match, 0, len(m.vectors))
	for id, v := range m.vectors {
		matches = append(matches, database.Match{PhotoID: id, Similarity: database.CosineSimilarity(vector, v)})
	}
	database.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:max(k, 0)]
	}
	return matches, nil
}

// Delete removes photoID
func (m *MockVectorIndex) Delete(ctx context.Context, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.vectors, photoID)
	return nil
}

// DeleteMany removes every photo in photoIDs
func (m *MockVectorIndex) DeleteMany(ctx context.Context, photoIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	for _, id := range photoIDs {
		delete(m.vectors, id)
	}
	return nil
}

// RemoveAll clears every vector
func (m *MockVectorIndex) RemoveAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveAllError != nil {
		return m.RemoveAllError
	}
	m.vectors = make(map[string][]float32)
	return nil
}

// Count returns the number of stored vectors
func (m *MockVectorIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors), nil
}

// Has reports whether photoID has a vector
func (m *MockVectorIndex) Has(ctx context.Context, photoID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vectors[photoID]
	return ok, nil
}

// GetUniquePhotoIDs returns the stored photo IDs in sorted order
func (m *MockVectorIndex) GetUniquePhotoIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.vectors))
	for id := range m.vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Vector returns a copy of the stored vector for photoID, or nil
func (m *MockVectorIndex) Vector(photoID string) []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.vectors[photoID])
}

// Put stores a vector directly, bypassing counters and injected errors
func (m *MockVectorIndex) Put(photoID string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[photoID] = slices.Clone(vector)
}

// SetUpsertError swaps the injected upsert error under the lock
func (m *MockVectorIndex) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertError = err
}

// SetBatchError swaps the injected batch error under the lock
func (m *MockVectorIndex) SetBatchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchError = err
}

// Upserts returns the number of vectors passed to Upsert or UpsertBatch so far
func (m *MockVectorIndex) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.written
}

// Batches returns the number of UpsertBatch calls so far
func (m *MockVectorIndex) Batches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.BatchCalls
}
