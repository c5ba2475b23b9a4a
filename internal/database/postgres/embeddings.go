package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/photo-triage/internal/database"
)

// EmbeddingRepository is a pgvector-backed database.VectorIndex with an
// optional in-memory HNSW index for queries.
type EmbeddingRepository struct {
	pool  *Pool
	model string

	hnswMu        sync.RWMutex
	hnswIndex     *database.MemoryIndex
	hnswIndexPath string

	dimMu sync.Mutex
	dim   int
}

var _ database.VectorIndex = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a repository that records model with each vector.
func NewEmbeddingRepository(pool *Pool, model string) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool, model: model}
}

// indexDim returns the dimension of stored vectors, or 0 for an empty table.
func (r *EmbeddingRepository) indexDim(ctx context.Context) (int, error) {
	r.dimMu.Lock()
	defer r.dimMu.Unlock()
	if r.dim != 0 {
		return r.dim, nil
	}
	var dim int
	err := r.pool.QueryRow(ctx, "SELECT dim FROM embeddings LIMIT 1").Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query embedding dimension: %w", err)
	}
	r.dim = dim
	return dim, nil
}

func (r *EmbeddingRepository) resetDim() {
	r.dimMu.Lock()
	r.dim = 0
	r.dimMu.Unlock()
}

func (r *EmbeddingRepository) checkVector(ctx context.Context, photoID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("refusing to index empty vector for %s", photoID)
	}
	nonZero := false
	for _, v := range vector {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		return fmt.Errorf("refusing to index zero vector for %s", photoID)
	}
	dim, err := r.indexDim(ctx)
	if err != nil {
		return err
	}
	if dim != 0 && dim != len(vector) {
		return fmt.Errorf("%w: index has %d dimensions, got %d", database.ErrDimensionMismatch, dim, len(vector))
	}
	return nil
}

// Upsert saves or replaces the vector for photoID.
func (r *EmbeddingRepository) Upsert(ctx context.Context, photoID string, vector []float32) error {
	if err := r.checkVector(ctx, photoID, vector); err != nil {
		return err
	}

	query := `
		INSERT INTO embeddings (photo_id, embedding, model, dim, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (photo_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, photoID, pgvector.NewVector(vector), r.model, len(vector)); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}

	r.dimMu.Lock()
	r.dim = len(vector)
	r.dimMu.Unlock()

	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		if err := idx.Upsert(ctx, photoID, vector); err != nil {
			return fmt.Errorf("update HNSW index: %w", err)
		}
	}
	return nil
}

// UpsertBatch saves several vectors in one transaction.
func (r *EmbeddingRepository) UpsertBatch(ctx context.Context, embeddings []database.StoredEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	for _, emb := range embeddings {
		if err := r.checkVector(ctx, emb.PhotoID, emb.Embedding); err != nil {
			return err
		}
		if emb.Dim != 0 && emb.Dim != len(emb.Embedding) {
			return fmt.Errorf("%w: %s declares %d dimensions but has %d", database.ErrDimensionMismatch, emb.PhotoID, emb.Dim, len(emb.Embedding))
		}
	}
	if dim := len(embeddings[0].Embedding); dim > 0 {
		for _, emb := range embeddings[1:] {
			if len(emb.Embedding) != dim {
				return fmt.Errorf("%w: batch mixes %d and %d dimensions", database.ErrDimensionMismatch, dim, len(emb.Embedding))
			}
		}
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (photo_id, embedding, model, dim, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (photo_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, emb := range embeddings {
		model := emb.Model
		if model == "" {
			model = r.model
		}
		if _, err := stmt.ExecContext(ctx, emb.PhotoID, pgvector.NewVector(emb.Embedding), model, len(emb.Embedding)); err != nil {
			return fmt.Errorf("insert embedding %s: %w", emb.PhotoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.dimMu.Lock()
	r.dim = len(embeddings[0].Embedding)
	r.dimMu.Unlock()

	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		if err := idx.UpsertBatch(ctx, embeddings); err != nil {
			return fmt.Errorf("update HNSW index: %w", err)
		}
	}
	return nil
}

// Query returns up to k photos ordered by descending cosine similarity. The
// in-memory HNSW index answers when enabled; otherwise pgvector does.
func (r *EmbeddingRepository) Query(ctx context.Context, vector []float32, k int) ([]database.Match, error) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		return idx.Query(ctx, vector, k)
	}
	return r.queryPostgres(ctx, vector, k)
}

func (r *EmbeddingRepository) queryPostgres(ctx context.Context, vector []float32, k int) ([]database.Match, error) {
	dim, err := r.indexDim(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, database.ErrEmptyIndex
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: index has %d dimensions, query has %d", database.ErrDimensionMismatch, dim, len(vector))
	}
	if k <= 0 {
		return []database.Match{}, nil
	}

	query := `
		SELECT photo_id, 1 - (embedding <=> $1::vector) AS similarity
		FROM embeddings
		ORDER BY embedding <=> $1::vector, photo_id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query similar embeddings: %w", err)
	}
	defer rows.Close()

	matches := make([]database.Match, 0, k)
	for rows.Next() {
		var m database.Match
		if err := rows.Scan(&m.PhotoID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	if len(matches) == 0 {
		return nil, database.ErrEmptyIndex
	}
	return matches, nil
}

// Delete removes the vector for photoID.
func (r *EmbeddingRepository) Delete(ctx context.Context, photoID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM embeddings WHERE photo_id = $1", photoID); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}

	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		if err := idx.Delete(ctx, photoID); err != nil {
			return err
		}
	}

	if n, err := r.Count(ctx); err == nil && n == 0 {
		r.resetDim()
	}
	return nil
}

// DeleteMany removes the vectors for photoIDs in one statement.
func (r *EmbeddingRepository) DeleteMany(ctx context.Context, photoIDs []string) error {
	if len(photoIDs) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, "DELETE FROM embeddings WHERE photo_id = ANY($1)", pq.Array(photoIDs)); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}

	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		if err := idx.DeleteMany(ctx, photoIDs); err != nil {
			return err
		}
	}

	if n, err := r.Count(ctx); err == nil && n == 0 {
		r.resetDim()
	}
	return nil
}

// RemoveAll deletes every vector.
func (r *EmbeddingRepository) RemoveAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE embeddings"); err != nil {
		return fmt.Errorf("truncate embeddings: %w", err)
	}
	r.resetDim()

	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()
	if idx != nil {
		return idx.RemoveAll(ctx)
	}
	return nil
}

// Count returns the total number of embeddings stored.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// Has checks whether photoID has a stored embedding.
func (r *EmbeddingRepository) Has(ctx context.Context, photoID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM embeddings WHERE photo_id = $1)", photoID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedding exists: %w", err)
	}
	return exists, nil
}

// GetUniquePhotoIDs returns every photo ID with an embedding.
func (r *EmbeddingRepository) GetUniquePhotoIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT photo_id FROM embeddings ORDER BY photo_id")
	if err != nil {
		return nil, fmt.Errorf("query photo ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan photo id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo ids: %w", err)
	}
	return ids, nil
}

// GetAllEmbeddings retrieves all embeddings, used to build the HNSW index.
func (r *EmbeddingRepository) GetAllEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, "SELECT photo_id, embedding, model, dim, created_at FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("query all embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.PhotoID, &vec, &emb.Model, &emb.Dim, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// EnableHNSW builds the in-memory index. With a non-empty indexPath a saved
// index is reused when its metadata count matches the table; otherwise the
// index is rebuilt from PostgreSQL.
func (r *EmbeddingRepository) EnableHNSW(ctx context.Context, indexPath string) (int, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}

	idx := database.NewMemoryIndex(r.model)
	if !r.tryLoad(idx, indexPath, count) {
		embeddings, err := r.GetAllEmbeddings(ctx)
		if err != nil {
			return 0, err
		}
		if err := idx.BuildFromEmbeddings(embeddings); err != nil {
			return 0, fmt.Errorf("build HNSW index: %w", err)
		}
	}

	r.hnswMu.Lock()
	r.hnswIndex = idx
	r.hnswIndexPath = indexPath
	r.hnswMu.Unlock()

	return idx.Count(ctx)
}

func (r *EmbeddingRepository) tryLoad(idx *database.MemoryIndex, indexPath string, count int) bool {
	if indexPath == "" {
		return false
	}
	meta, err := database.LoadHNSWEmbeddingMetadata(indexPath)
	if err != nil || meta.EmbeddingCount != count {
		return false
	}
	return idx.Load(indexPath) == nil
}

// SaveHNSWIndex persists the in-memory index when both the index and a path are set.
func (r *EmbeddingRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	idx, path := r.hnswIndex, r.hnswIndexPath
	r.hnswMu.RUnlock()

	if idx == nil || path == "" {
		return nil
	}
	if err := idx.Save(path); err != nil {
		return fmt.Errorf("save HNSW index to %s: %w", path, err)
	}
	return nil
}

// HNSWEnabled reports whether queries are answered from memory.
func (r *EmbeddingRepository) HNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswIndex != nil
}
