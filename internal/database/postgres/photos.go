package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

// PhotoRepository persists catalog entries in the photos table.
type PhotoRepository struct {
	pool *Pool
}

var _ catalog.Store = (*PhotoRepository)(nil)

// NewPhotoRepository creates a new catalog store.
func NewPhotoRepository(pool *Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

// SavePhoto inserts or replaces the entry.
func (r *PhotoRepository) SavePhoto(ctx context.Context, e catalog.Entry) error {
	metrics, err := json.Marshal(e.Quality.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	defects := make([]string, len(e.Quality.DefectTypes))
	for i, d := range e.Quality.DefectTypes {
		defects[i] = string(d)
	}

	query := `
		INSERT INTO photos (photo_id, filename, folder, is_defective, defect_types, metrics, indexed, fingerprint, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (photo_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			folder = EXCLUDED.folder,
			is_defective = EXCLUDED.is_defective,
			defect_types = EXCLUDED.defect_types,
			metrics = EXCLUDED.metrics,
			indexed = EXCLUDED.indexed,
			fingerprint = EXCLUDED.fingerprint,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		e.PhotoID, e.Filename, e.Folder, e.Quality.IsDefective, pq.Array(defects),
		metrics, e.Indexed, e.Fingerprint, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save photo: %w", err)
	}
	return nil
}

// DeletePhotos removes entries by photo ID.
func (r *PhotoRepository) DeletePhotos(ctx context.Context, photoIDs []string) error {
	if len(photoIDs) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, "DELETE FROM photos WHERE photo_id = ANY($1)", pq.Array(photoIDs)); err != nil {
		return fmt.Errorf("delete photos: %w", err)
	}
	return nil
}

// ListPhotos returns every stored entry ordered by photo ID.
func (r *PhotoRepository) ListPhotos(ctx context.Context) ([]catalog.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT photo_id, filename, folder, is_defective, defect_types, metrics, indexed, fingerprint, updated_at
		FROM photos
		ORDER BY photo_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var defects []string
		var metrics []byte
		if err := rows.Scan(
			&e.PhotoID, &e.Filename, &e.Folder, &e.Quality.IsDefective, pq.Array(&defects),
			&metrics, &e.Indexed, &e.Fingerprint, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		if err := json.Unmarshal(metrics, &e.Quality.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", e.PhotoID, err)
		}
		e.Quality.DefectTypes = make([]quality.DefectType, len(defects))
		for i, d := range defects {
			e.Quality.DefectTypes[i] = quality.DefectType(d)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return entries, nil
}

// ClearPhotos removes every entry.
func (r *PhotoRepository) ClearPhotos(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE photos"); err != nil {
		return fmt.Errorf("truncate photos: %w", err)
	}
	return nil
}
