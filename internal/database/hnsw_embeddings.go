package database

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// MemoryIndex is an in-process VectorIndex backed by an HNSW graph.
// The id->embedding map is authoritative. Queries scan it exactly up to
// ExactSearchMaxVectors entries; above that the graph proposes candidates
// that are re-ranked with exact cosine similarity. Replacing or deleting a
// vector marks the graph dirty and it is rebuilt before the next graph query.
type MemoryIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	idToEmb map[string]*StoredEmbedding
	dirty   bool
	dim     int
	model   string

	// exactLimit is the largest index answered by an exact scan
	exactLimit int
}

var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index; model is recorded with each stored vector.
func NewMemoryIndex(model string) *MemoryIndex {
	return &MemoryIndex{
		idToEmb:    make(map[string]*StoredEmbedding),
		model:      model,
		exactLimit: ExactSearchMaxVectors,
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Upsert stores vector for photoID, replacing any previous vector.
func (m *MemoryIndex) Upsert(ctx context.Context, photoID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVector(photoID, vector, m.dim); err != nil {
		return err
	}
	m.upsertLocked(photoID, vector)
	return nil
}

// UpsertBatch stores several vectors. The batch is validated as a whole
// first, so either every vector is stored or none is.
func (m *MemoryIndex) UpsertBatch(ctx context.Context, embeddings []StoredEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dim
	for _, emb := range embeddings {
		if err := m.checkVector(emb.PhotoID, emb.Embedding, dim); err != nil {
			return err
		}
		dim = len(emb.Embedding)
	}
	for _, emb := range embeddings {
		m.upsertLocked(emb.PhotoID, emb.Embedding)
	}
	return nil
}

// checkVector rejects empty and zero vectors and vectors whose length differs from dim.
func (m *MemoryIndex) checkVector(photoID string, vector []float32, dim int) error {
	if len(vector) == 0 || isZero(vector) {
		return fmt.Errorf("refusing to index empty or zero vector for %s", photoID)
	}
	if dim != 0 && len(vector) != dim {
		return fmt.Errorf("%w: index has %d dimensions, got %d", ErrDimensionMismatch, dim, len(vector))
	}
	return nil
}

func (m *MemoryIndex) upsertLocked(photoID string, vector []float32) {
	m.dim = len(vector)
	emb := &StoredEmbedding{
		PhotoID:   photoID,
		Embedding: slices.Clone(vector),
		Model:     m.model,
		Dim:       len(vector),
		CreatedAt: time.Now(),
	}
	_, exists := m.idToEmb[photoID]
	m.idToEmb[photoID] = emb

	if exists || m.dirty {
		m.dirty = true
		return
	}
	if m.graph == nil {
		m.graph = newGraph()
	}
	m.graph.Add(hnsw.MakeNode(photoID, emb.Embedding))
}

// Query returns up to k photos ordered by descending cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.idToEmb) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: index has %d dimensions, query has %d", ErrDimensionMismatch, m.dim, len(vector))
	}
	if k <= 0 {
		return []Match{}, nil
	}
	var matches []Match
	if len(m.idToEmb) <= m.exactLimit {
		matches = make([]Match, 0, len(m.idToEmb))
		for id, emb := range m.idToEmb {
			matches = append(matches, Match{PhotoID: id, Similarity: CosineSimilarity(vector, emb.Embedding)})
		}
	} else {
		if m.dirty {
			m.rebuildLocked()
		}
		// Search with more candidates for better recall after exact re-ranking
		searchK := max(k*HNSWSearchMultiplier, HNSWMinCandidates)
		neighbors := m.graph.Search(vector, searchK)
		matches = make([]Match, 0, len(neighbors))
		for _, n := range neighbors {
			emb, ok := m.idToEmb[n.Key]
			if !ok {
				continue
			}
			matches = append(matches, Match{PhotoID: n.Key, Similarity: CosineSimilarity(vector, emb.Embedding)})
		}
	}

	SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete removes photoID from the index.
func (m *MemoryIndex) Delete(ctx context.Context, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idToEmb[photoID]; !ok {
		return nil
	}
	delete(m.idToEmb, photoID)
	if len(m.idToEmb) == 0 {
		m.resetLocked()
		return nil
	}
	m.dirty = true
	return nil
}

// DeleteMany removes every photo in photoIDs.
func (m *MemoryIndex) DeleteMany(ctx context.Context, photoIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	for _, id := range photoIDs {
		if _, ok := m.idToEmb[id]; ok {
			delete(m.idToEmb, id)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	if len(m.idToEmb) == 0 {
		m.resetLocked()
		return nil
	}
	m.dirty = true
	return nil
}

// RemoveAll clears the index.
func (m *MemoryIndex) RemoveAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// Count returns the number of indexed embeddings
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.idToEmb), nil
}

// Has checks whether photoID is indexed.
func (m *MemoryIndex) Has(ctx context.Context, photoID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.idToEmb[photoID]
	return ok, nil
}

// GetUniquePhotoIDs returns the indexed photo IDs in sorted order.
func (m *MemoryIndex) GetUniquePhotoIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.idToEmb))
	for id := range m.idToEmb {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// BuildFromEmbeddings replaces the index content with embeddings.
func (m *MemoryIndex) BuildFromEmbeddings(embeddings []StoredEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked()
	for i := range embeddings {
		emb := embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		if m.dim != 0 && len(emb.Embedding) != m.dim {
			return fmt.Errorf("%w: embedding for %s has %d dimensions, expected %d", ErrDimensionMismatch, emb.PhotoID, len(emb.Embedding), m.dim)
		}
		m.dim = len(emb.Embedding)
		m.idToEmb[emb.PhotoID] = &emb
	}
	m.rebuildLocked()
	return nil
}

func (m *MemoryIndex) rebuildLocked() {
	m.dirty = false
	if len(m.idToEmb) == 0 {
		m.graph = nil
		return
	}

	ids := make([]string, 0, len(m.idToEmb))
	for id := range m.idToEmb {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	g := newGraph()
	for _, id := range ids {
		g.Add(hnsw.MakeNode(id, m.idToEmb[id].Embedding))
	}
	m.graph = g
}

func (m *MemoryIndex) resetLocked() {
	m.graph = nil
	m.idToEmb = make(map[string]*StoredEmbedding)
	m.dirty = false
	m.dim = 0
}

// HNSWEmbeddingIndexMetadata stores metadata for freshness checking
type HNSWEmbeddingIndexMetadata struct {
	EmbeddingCount int       `json:"embedding_count"`
	Dim            int       `json:"dim"`
	Model          string    `json:"model"`
	SavedAt        time.Time `json:"saved_at"`
}

// LoadHNSWEmbeddingMetadata loads just the metadata file for staleness checking
func LoadHNSWEmbeddingMetadata(basePath string) (*HNSWEmbeddingIndexMetadata, error) {
	data, err := os.ReadFile(basePath + ".meta")
	if err != nil {
		return nil, err
	}
	var meta HNSWEmbeddingIndexMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Save writes the graph to basePath, metadata to basePath.meta and the
// embeddings to basePath.embeddings. An empty index removes the files.
func (m *MemoryIndex) Save(basePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.idToEmb) == 0 {
		for _, p := range []string{basePath, basePath + ".meta", basePath + ".embeddings"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
		return nil
	}
	if m.dirty {
		m.rebuildLocked()
	}

	f, err := os.Create(basePath)
	if err != nil {
		return fmt.Errorf("failed to create HNSW embedding index file: %w", err)
	}
	if err := m.graph.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW embedding index file: %w", err)
	}

	metaData, err := json.Marshal(HNSWEmbeddingIndexMetadata{
		EmbeddingCount: len(m.idToEmb),
		Dim:            m.dim,
		Model:          m.model,
		SavedAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(basePath+".meta", metaData, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	embFile, err := os.Create(basePath + ".embeddings")
	if err != nil {
		return fmt.Errorf("failed to create embeddings file: %w", err)
	}
	defer embFile.Close()

	embeddings := make([]StoredEmbedding, 0, len(m.idToEmb))
	for _, emb := range m.idToEmb {
		embeddings = append(embeddings, *emb)
	}
	if err := gob.NewEncoder(embFile).Encode(embeddings); err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}
	return nil
}

// Load restores an index written by Save. The saved graph is reused when its
// metadata matches the embeddings file; otherwise the graph is rebuilt.
// A missing index file returns an error wrapping os.ErrNotExist.
func (m *MemoryIndex) Load(basePath string) error {
	embFile, err := os.Open(basePath + ".embeddings")
	if err != nil {
		return fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer embFile.Close()

	var embeddings []StoredEmbedding
	if err := gob.NewDecoder(embFile).Decode(&embeddings); err != nil {
		return fmt.Errorf("failed to decode embeddings: %w", err)
	}

	meta, metaErr := LoadHNSWEmbeddingMetadata(basePath)
	if metaErr != nil || meta.EmbeddingCount != len(embeddings) {
		return m.BuildFromEmbeddings(embeddings)
	}
	if _, err := os.Stat(basePath); err != nil {
		return m.BuildFromEmbeddings(embeddings)
	}

	saved, err := hnsw.LoadSavedGraph[string](basePath)
	if err != nil {
		return m.BuildFromEmbeddings(embeddings)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	for i := range embeddings {
		m.idToEmb[embeddings[i].PhotoID] = &embeddings[i]
	}
	m.dim = meta.Dim
	if meta.Model != "" {
		m.model = meta.Model
	}
	m.graph = saved.Graph
	m.graph.Distance = hnsw.CosineDistance
	return nil
}
