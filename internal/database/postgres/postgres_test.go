//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/config"
	"github.com/kozaktomas/photo-triage/internal/database"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}
	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func testVector(dim, shift int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32((i+shift)%dim+1) / float32(dim)
	}
	return v
}

func TestEmbeddingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewEmbeddingRepository(pool, "clip")

	t.Run("EmptyQuery", func(t *testing.T) {
		_, err := repo.Query(ctx, testVector(8, 0), 3)
		if !errors.Is(err, database.ErrEmptyIndex) {
			t.Errorf("expected ErrEmptyIndex, got %v", err)
		}
	})

	t.Run("UpsertAndHas", func(t *testing.T) {
		if err := repo.Upsert(ctx, "/photos/a.jpg", testVector(8, 0)); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		has, err := repo.Has(ctx, "/photos/a.jpg")
		if err != nil {
			t.Fatalf("Failed to check embedding: %v", err)
		}
		if !has {
			t.Fatal("expected embedding to exist")
		}
		all, err := repo.GetAllEmbeddings(ctx)
		if err != nil {
			t.Fatalf("Failed to list embeddings: %v", err)
		}
		if len(all) != 1 || all[0].Model != "clip" || all[0].Dim != 8 {
			t.Fatalf("unexpected embeddings: %+v", all)
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		if err := repo.Upsert(ctx, "/photos/a.jpg", testVector(8, 3)); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 embedding after replace, got %d", count)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := repo.Upsert(ctx, "/photos/b.jpg", testVector(4, 0))
		if !errors.Is(err, database.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("QueryOrder", func(t *testing.T) {
		batch := []database.StoredEmbedding{
			{PhotoID: "/photos/b.jpg", Embedding: testVector(8, 1)},
			{PhotoID: "/photos/c.jpg", Embedding: testVector(8, 5)},
		}
		if err := repo.UpsertBatch(ctx, batch); err != nil {
			t.Fatalf("Failed to upsert batch: %v", err)
		}

		matches, err := repo.Query(ctx, testVector(8, 3), 2)
		if err != nil {
			t.Fatalf("Failed to query: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
		if matches[0].PhotoID != "/photos/a.jpg" {
			t.Errorf("expected exact match first, got %s", matches[0].PhotoID)
		}
		if math.Abs(matches[0].Similarity-1) > 1e-5 {
			t.Errorf("expected similarity ~1, got %v", matches[0].Similarity)
		}
	})

	t.Run("HNSWMatchesSQL", func(t *testing.T) {
		sqlMatches, err := repo.Query(ctx, testVector(8, 1), 3)
		if err != nil {
			t.Fatalf("Failed to query: %v", err)
		}
		n, err := repo.EnableHNSW(ctx, "")
		if err != nil {
			t.Fatalf("Failed to enable HNSW: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 vectors in HNSW index, got %d", n)
		}
		memMatches, err := repo.Query(ctx, testVector(8, 1), 3)
		if err != nil {
			t.Fatalf("Failed to query HNSW: %v", err)
		}
		for i := range sqlMatches {
			if sqlMatches[i].PhotoID != memMatches[i].PhotoID {
				t.Errorf("rank %d: SQL %s vs HNSW %s", i, sqlMatches[i].PhotoID, memMatches[i].PhotoID)
			}
		}
	})

	t.Run("DeleteAndRemoveAll", func(t *testing.T) {
		if err := repo.Delete(ctx, "/photos/a.jpg"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if has, _ := repo.Has(ctx, "/photos/a.jpg"); has {
			t.Error("expected deleted embedding to be gone")
		}
		if err := repo.DeleteMany(ctx, []string{"/photos/b.jpg", "/photos/missing.jpg"}); err != nil {
			t.Fatalf("Failed to delete many: %v", err)
		}
		ids, err := repo.GetUniquePhotoIDs(ctx)
		if err != nil {
			t.Fatalf("Failed to list photo ids: %v", err)
		}
		if len(ids) != 1 || ids[0] != "/photos/c.jpg" {
			t.Errorf("expected only c.jpg to remain, got %v", ids)
		}
		memMatches, err := repo.Query(ctx, testVector(8, 1), 3)
		if err != nil || len(memMatches) != 1 {
			t.Errorf("expected HNSW index to follow deletes, got %+v (%v)", memMatches, err)
		}
		if err := repo.RemoveAll(ctx); err != nil {
			t.Fatalf("Failed to remove all: %v", err)
		}
		if _, err := repo.Query(ctx, testVector(8, 0), 1); !errors.Is(err, database.ErrEmptyIndex) {
			t.Errorf("expected ErrEmptyIndex after RemoveAll, got %v", err)
		}
	})
}

func TestPhotoRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewPhotoRepository(pool)

	entry := catalog.NewEntry("/photos/dark.jpg", quality.Result{
		IsDefective: true,
		DefectTypes: []quality.DefectType{quality.DefectBlur, quality.DefectUnderexposed},
		Metrics:     map[string]float64{quality.MetricLaplacianVariance: 0, quality.MetricUnderexposedRatio: 1},
	}, false, "abcd")

	if err := repo.SavePhoto(ctx, entry); err != nil {
		t.Fatalf("Failed to save photo: %v", err)
	}
	if err := repo.SavePhoto(ctx, catalog.NewEntry("/photos/ok.jpg", quality.Result{DefectTypes: []quality.DefectType{}}, true, "ef01")); err != nil {
		t.Fatalf("Failed to save photo: %v", err)
	}

	entries, err := repo.ListPhotos(ctx)
	if err != nil {
		t.Fatalf("Failed to list photos: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	got := entries[0]
	if got.PhotoID != "/photos/dark.jpg" || got.Folder != "/photos" || got.Filename != "dark.jpg" {
		t.Errorf("unexpected identity fields: %+v", got)
	}
	if !got.Quality.HasDefect(quality.DefectUnderexposed) || !got.Quality.HasDefect(quality.DefectBlur) {
		t.Errorf("expected defects to round trip, got %v", got.Quality.DefectTypes)
	}
	if got.Quality.Metrics[quality.MetricUnderexposedRatio] != 1 {
		t.Errorf("expected metrics to round trip, got %v", got.Quality.Metrics)
	}

	if err := repo.DeletePhotos(ctx, []string{"/photos/dark.jpg"}); err != nil {
		t.Fatalf("Failed to delete photos: %v", err)
	}
	entries, _ = repo.ListPhotos(ctx)
	if len(entries) != 1 || !entries[0].Indexed {
		t.Errorf("expected the indexed entry to remain, got %+v", entries)
	}

	if err := repo.ClearPhotos(ctx); err != nil {
		t.Fatalf("Failed to clear photos: %v", err)
	}
	entries, _ = repo.ListPhotos(ctx)
	if len(entries) != 0 {
		t.Errorf("expected empty catalog, got %d", len(entries))
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expected := []string{"001_create_embeddings.sql", "002_create_photos.sql"}
	if len(applied) != len(expected) {
		t.Fatalf("Expected %d migrations, got %d", len(expected), len(applied))
	}
	for i := range expected {
		if applied[i] != expected[i] {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected[i], applied[i])
		}
	}

	// A second run is a no-op
	again, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("Failed to re-run migrations: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no pending migrations, got %v", again)
	}
}
