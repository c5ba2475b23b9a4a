// Package sqlite stores the photo catalog in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

const schema = `
CREATE TABLE IF NOT EXISTS photos (
	photo_id     TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	folder       TEXT NOT NULL,
	is_defective INTEGER NOT NULL,
	defect_types TEXT NOT NULL DEFAULT '[]',
	metrics      TEXT NOT NULL DEFAULT '{}',
	indexed      INTEGER NOT NULL DEFAULT 0,
	fingerprint  TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photos_folder ON photos(folder);`

// CatalogStore is a catalog.Store backed by modernc.org/sqlite.
type CatalogStore struct {
	db *sql.DB
}

var _ catalog.Store = (*CatalogStore)(nil)

// Open opens or creates the catalog database at path.
func Open(path string) (*CatalogStore, error) {
	if path == "" {
		return nil, errors.New("catalog path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return &CatalogStore{db: db}, nil
}

// Close closes the database.
func (s *CatalogStore) Close() error {
	return s.db.Close()
}

// SavePhoto inserts or replaces the entry.
func (s *CatalogStore) SavePhoto(ctx context.Context, e catalog.Entry) error {
	defects, err := json.Marshal(e.Quality.DefectTypes)
	if err != nil {
		return fmt.Errorf("marshal defect types: %w", err)
	}
	metrics, err := json.Marshal(e.Quality.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO photos (photo_id, filename, folder, is_defective, defect_types, metrics, indexed, fingerprint, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(photo_id) DO UPDATE SET
			filename = excluded.filename,
			folder = excluded.folder,
			is_defective = excluded.is_defective,
			defect_types = excluded.defect_types,
			metrics = excluded.metrics,
			indexed = excluded.indexed,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at`,
		e.PhotoID, e.Filename, e.Folder, e.Quality.IsDefective, string(defects), string(metrics),
		e.Indexed, e.Fingerprint, e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save photo: %w", err)
	}
	return nil
}

// DeletePhotos removes entries by photo ID in one transaction.
func (s *CatalogStore) DeletePhotos(ctx context.Context, photoIDs []string) error {
	if len(photoIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM photos WHERE photo_id = ?")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range photoIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete photo %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListPhotos returns every stored entry ordered by photo ID.
func (s *CatalogStore) ListPhotos(ctx context.Context) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT photo_id, filename, folder, is_defective, defect_types, metrics, indexed, fingerprint, updated_at
		FROM photos
		ORDER BY photo_id`)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var defects, metrics, updated string
		if err := rows.Scan(
			&e.PhotoID, &e.Filename, &e.Folder, &e.Quality.IsDefective, &defects,
			&metrics, &e.Indexed, &e.Fingerprint, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		if err := json.Unmarshal([]byte(defects), &e.Quality.DefectTypes); err != nil {
			return nil, fmt.Errorf("decode defect types for %s: %w", e.PhotoID, err)
		}
		if e.Quality.DefectTypes == nil {
			e.Quality.DefectTypes = []quality.DefectType{}
		}
		if err := json.Unmarshal([]byte(metrics), &e.Quality.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", e.PhotoID, err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at for %s: %w", e.PhotoID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return entries, nil
}

// ClearPhotos removes every entry.
func (s *CatalogStore) ClearPhotos(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM photos"); err != nil {
		return fmt.Errorf("clear photos: %w", err)
	}
	return nil
}
