// Package catalog keeps the per-photo triage verdicts that search and listing read.
package catalog

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/photo-triage/internal/quality"
)

// Entry is the catalog record of one photo. Entries are values: the catalog
// swaps whole entries and never mutates a stored one in place.
type Entry struct {
	PhotoID     string         `json:"photo_id"`
	Filename    string         `json:"filename"`
	Folder      string         `json:"folder"`
	Quality     quality.Result `json:"quality"`
	Indexed     bool           `json:"indexed"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Qualified reports whether the photo passed quality assessment.
func (e Entry) Qualified() bool {
	return !e.Quality.IsDefective
}

// NewEntry builds an entry for the photo at path.
func NewEntry(path string, res quality.Result, indexed bool, fingerprint string) Entry {
	return Entry{
		PhotoID:     path,
		Filename:    filepath.Base(path),
		Folder:      filepath.Dir(path),
		Quality:     res,
		Indexed:     indexed,
		Fingerprint: fingerprint,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Store persists catalog entries. Implementations must be safe for concurrent use.
type Store interface {
	// SavePhoto inserts or replaces an entry
	SavePhoto(ctx context.Context, e Entry) error
	// DeletePhotos removes entries by photo ID
	DeletePhotos(ctx context.Context, photoIDs []string) error
	// ListPhotos returns every stored entry
	ListPhotos(ctx context.Context) ([]Entry, error)
	// ClearPhotos removes every entry
	ClearPhotos(ctx context.Context) error
}

// Catalog is an in-memory map of photo ID to entry with optional write-through
// persistence. Readers see either the previous or the new entry, never a mix.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	store   Store
}

// New creates an empty catalog. store may be nil for a purely in-memory catalog.
func New(store Store) *Catalog {
	return &Catalog{
		entries: make(map[string]*Entry),
		store:   store,
	}
}

// Load replaces the in-memory content with the store's entries.
func (c *Catalog) Load(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	entries, err := c.store.ListPhotos(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load catalog: %w", err)
	}

	loaded := make(map[string]*Entry, len(entries))
	for i := range entries {
		loaded[entries[i].PhotoID] = cloneEntry(entries[i])
	}

	c.mu.Lock()
	c.entries = loaded
	c.mu.Unlock()
	return len(loaded), nil
}

// Upsert replaces the entry for e.PhotoID. The in-memory entry is always
// updated; a persistence failure is returned afterwards.
func (c *Catalog) Upsert(ctx context.Context, e Entry) error {
	stored := cloneEntry(e)

	c.mu.Lock()
	c.entries[e.PhotoID] = stored
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SavePhoto(ctx, *stored); err != nil {
			return fmt.Errorf("failed to persist catalog entry %s: %w", e.PhotoID, err)
		}
	}
	return nil
}

// Get returns a copy of the entry for photoID.
func (c *Catalog) Get(photoID string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[photoID]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return *cloneEntry(*e), true
}

// List returns copies of the entries matching f, sorted by photo ID.
func (c *Catalog) List(f Filter) []Entry {
	c.mu.RLock()
	matched := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if f.Match(*e) {
			matched = append(matched, e)
		}
	}
	c.mu.RUnlock()

	out := make([]Entry, len(matched))
	for i, e := range matched {
		out[i] = *cloneEntry(*e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.PhotoID, b.PhotoID) })
	return out
}

// Retain removes every entry directly inside folder whose ID is not in keep,
// and returns the removed entries.
func (c *Catalog) Retain(ctx context.Context, folder string, keep map[string]struct{}) ([]Entry, error) {
	folder = filepath.Clean(folder)

	c.mu.Lock()
	var removed []Entry
	for id, e := range c.entries {
		if e.Folder != folder {
			continue
		}
		if _, ok := keep[id]; ok {
			continue
		}
		removed = append(removed, *e)
		delete(c.entries, id)
	}
	c.mu.Unlock()

	slices.SortFunc(removed, func(a, b Entry) int { return strings.Compare(a.PhotoID, b.PhotoID) })

	if c.store != nil && len(removed) > 0 {
		ids := make([]string, len(removed))
		for i, e := range removed {
			ids[i] = e.PhotoID
		}
		if err := c.store.DeletePhotos(ctx, ids); err != nil {
			return removed, fmt.Errorf("failed to delete pruned catalog entries: %w", err)
		}
	}
	return removed, nil
}

// Clear removes every entry.
func (c *Catalog) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.ClearPhotos(ctx); err != nil {
			return fmt.Errorf("failed to clear catalog store: %w", err)
		}
	}
	return nil
}

// Stats summarizes the catalog.
type Stats struct {
	Total     int                        `json:"total"`
	Qualified int                        `json:"qualified"`
	Defective int                        `json:"defective"`
	Indexed   int                        `json:"indexed"`
	Defects   map[quality.DefectType]int `json:"defects"`
}

// Stats counts entries by verdict and defect type.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Total: len(c.entries), Defects: make(map[quality.DefectType]int)}
	for _, e := range c.entries {
		if e.Qualified() {
			s.Qualified++
		} else {
			s.Defective++
		}
		if e.Indexed {
			s.Indexed++
		}
		for _, d := range e.Quality.DefectTypes {
			s.Defects[d]++
		}
	}
	return s
}

// cloneEntry deep-copies the slices and maps so callers cannot alias stored state.
func cloneEntry(e Entry) *Entry {
	e.Quality.DefectTypes = slices.Clone(e.Quality.DefectTypes)
	if e.Quality.DefectTypes == nil {
		e.Quality.DefectTypes = []quality.DefectType{}
	}
	e.Quality.Metrics = maps.Clone(e.Quality.Metrics)
	return &e
}
