package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kozaktomas/photo-triage/internal/quality"
)

// memStore is a map-backed Store with error injection.
type memStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	saveErr error
	deletes [][]string
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]Entry)}
}

func (s *memStore) SavePhoto(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entries[e.PhotoID] = e
	return nil
}

func (s *memStore) DeletePhotos(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, ids)
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *memStore) ListPhotos(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *memStore) ClearPhotos(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
	return nil
}

func qualified() quality.Result {
	return quality.Result{DefectTypes: []quality.DefectType{}, Metrics: map[string]float64{}}
}

func defective(defects ...quality.DefectType) quality.Result {
	return quality.Result{IsDefective: true, DefectTypes: defects, Metrics: map[string]float64{}}
}

func seed(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()
	entries := []Entry{
		NewEntry("/a/good.jpg", qualified(), true, ""),
		NewEntry("/a/dark.jpg", defective(quality.DefectBlur, quality.DefectUnderexposed), false, ""),
		NewEntry("/a/soft.jpg", defective(quality.DefectBlur), false, ""),
		NewEntry("/b/bright.jpg", defective(quality.DefectOverexposed), false, ""),
	}
	for _, e := range entries {
		if err := c.Upsert(ctx, e); err != nil {
			t.Fatalf("upsert %s: %v", e.PhotoID, err)
		}
	}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PhotoID
	}
	return out
}

func TestCatalog_List(t *testing.T) {
	c := New(nil)
	seed(t, c)

	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{"all", Filter{Kind: KindAll}, []string{"/a/dark.jpg", "/a/good.jpg", "/a/soft.jpg", "/b/bright.jpg"}},
		{"zero value is all", Filter{}, []string{"/a/dark.jpg", "/a/good.jpg", "/a/soft.jpg", "/b/bright.jpg"}},
		{"qualified", Filter{Kind: KindQualified}, []string{"/a/good.jpg"}},
		{"defective", Filter{Kind: KindDefective}, []string{"/a/dark.jpg", "/a/soft.jpg", "/b/bright.jpg"}},
		{"blur", Filter{DefectTypes: []quality.DefectType{quality.DefectBlur}}, []string{"/a/dark.jpg", "/a/soft.jpg"}},
		{"blur and underexposed", Filter{DefectTypes: []quality.DefectType{quality.DefectBlur, quality.DefectUnderexposed}}, []string{"/a/dark.jpg"}},
		{"qualified with defect", Filter{Kind: KindQualified, DefectTypes: []quality.DefectType{quality.DefectBlur}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(c.List(tt.filter))
			if fmt.Sprint(got) != fmt.Sprint(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCatalog_UpsertReplaces(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	if err := c.Upsert(ctx, NewEntry("/a/x.jpg", qualified(), true, "aa")); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(ctx, NewEntry("/a/x.jpg", defective(quality.DefectBlur), false, "bb")); err != nil {
		t.Fatal(err)
	}

	if c.Stats().Total != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Stats().Total)
	}
	e, ok := c.Get("/a/x.jpg")
	if !ok {
		t.Fatal("expected entry")
	}
	if e.Indexed || e.Qualified() || e.Fingerprint != "bb" {
		t.Errorf("expected replaced entry, got %+v", e)
	}
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	if err := c.Upsert(ctx, NewEntry("/a/x.jpg", defective(quality.DefectBlur), false, "")); err != nil {
		t.Fatal(err)
	}

	e, _ := c.Get("/a/x.jpg")
	e.Quality.DefectTypes[0] = quality.DefectOverexposed
	e.Quality.Metrics["x"] = 1

	again, _ := c.Get("/a/x.jpg")
	if again.Quality.DefectTypes[0] != quality.DefectBlur {
		t.Error("mutating a returned entry changed the catalog")
	}
	if _, ok := again.Quality.Metrics["x"]; ok {
		t.Error("mutating returned metrics changed the catalog")
	}
}

func TestCatalog_Retain(t *testing.T) {
	store := newMemStore()
	c := New(store)
	seed(t, c)

	removed, err := c.Retain(context.Background(), "/a/", map[string]struct{}{"/a/good.jpg": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(ids(removed)) != fmt.Sprint([]string{"/a/dark.jpg", "/a/soft.jpg"}) {
		t.Errorf("unexpected removed entries: %v", ids(removed))
	}
	if c.Stats().Total != 2 {
		t.Errorf("expected 2 entries left, got %d", c.Stats().Total)
	}
	if _, ok := c.Get("/b/bright.jpg"); !ok {
		t.Error("entries outside the folder must survive")
	}
	if len(store.deletes) != 1 || len(store.deletes[0]) != 2 {
		t.Errorf("expected one store delete of 2 ids, got %v", store.deletes)
	}
}

func TestCatalog_RetainNothingToRemove(t *testing.T) {
	store := newMemStore()
	c := New(store)
	seed(t, c)

	removed, err := c.Retain(context.Background(), "/b", map[string]struct{}{"/b/bright.jpg": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected nothing removed, got %v", ids(removed))
	}
	if len(store.deletes) != 0 {
		t.Errorf("expected no store delete, got %v", store.deletes)
	}
}

func TestCatalog_StoreFailureKeepsMemory(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	c := New(store)

	err := c.Upsert(context.Background(), NewEntry("/a/x.jpg", qualified(), true, ""))
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if _, ok := c.Get("/a/x.jpg"); !ok {
		t.Error("in-memory entry must be kept when the store fails")
	}
}

func TestCatalog_LoadAndClear(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	first := New(store)
	seed(t, first)

	second := New(store)
	n, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 4 || second.Stats().Total != 4 {
		t.Fatalf("expected 4 loaded entries, got %d/%d", n, second.Stats().Total)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if second.Stats().Total != 0 {
		t.Errorf("expected empty catalog, got %d", second.Stats().Total)
	}
	if entries, _ := store.ListPhotos(ctx); len(entries) != 0 {
		t.Errorf("expected empty store, got %d", len(entries))
	}
}

func TestCatalog_Stats(t *testing.T) {
	c := New(nil)
	seed(t, c)

	s := c.Stats()
	if s.Total != 4 || s.Qualified != 1 || s.Defective != 3 || s.Indexed != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.Defects[quality.DefectBlur] != 2 || s.Defects[quality.DefectOverexposed] != 1 {
		t.Errorf("unexpected defect counts: %v", s.Defects)
	}
}

func TestCatalog_ConcurrentReadersSeeWholeEntries(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	good := NewEntry("/a/x.jpg", qualified(), true, "good")
	bad := NewEntry("/a/x.jpg", defective(quality.DefectBlur), false, "bad")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 500 {
			if i%2 == 0 {
				c.Upsert(ctx, good)
			} else {
				c.Upsert(ctx, bad)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			e, ok := c.Get("/a/x.jpg")
			if !ok {
				continue
			}
			// Fields of one entry always belong together
			if e.Indexed != (e.Fingerprint == "good") || e.Qualified() != e.Indexed {
				t.Errorf("torn entry observed: %+v", e)
				return
			}
		}
	}()
	wg.Wait()
}

func TestParseFilter(t *testing.T) {
	known := []quality.DefectType{quality.DefectBlur, quality.DefectOverexposed, quality.DefectUnderexposed, "closed_eyes"}

	tests := []struct {
		name    string
		kind    string
		defects []string
		want    Filter
		wantErr bool
	}{
		{"empty", "", nil, Filter{Kind: KindAll}, false},
		{"qualified", "Qualified", nil, Filter{Kind: KindQualified}, false},
		{"defective with list", "defective", []string{"blur, underexposed"}, Filter{Kind: KindDefective, DefectTypes: []quality.DefectType{quality.DefectBlur, quality.DefectUnderexposed}}, false},
		{"repeated defects", "all", []string{"blur", "overexposed"}, Filter{Kind: KindAll, DefectTypes: []quality.DefectType{quality.DefectBlur, quality.DefectOverexposed}}, false},
		{"custom defect", "defective", []string{"Closed_Eyes"}, Filter{Kind: KindDefective, DefectTypes: []quality.DefectType{"closed_eyes"}}, false},
		{"unknown kind", "best", nil, Filter{}, true},
		{"unknown defect", "", []string{"grainy"}, Filter{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.kind, tt.defects, known)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.want.Kind || fmt.Sprint(got.DefectTypes) != fmt.Sprint(tt.want.DefectTypes) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
