package postgres

import "testing"

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(map[string]bool{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0] != "001_create_embeddings.sql" || all[1] != "002_create_photos.sql" {
		t.Fatalf("unexpected migrations: %v", all)
	}

	rest, err := pendingMigrations(map[string]bool{"001_create_embeddings.sql": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest) != 1 || rest[0] != "002_create_photos.sql" {
		t.Errorf("expected only the photos migration, got %v", rest)
	}
}
