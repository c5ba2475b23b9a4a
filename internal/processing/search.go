package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/constants"
	"github.com/kozaktomas/photo-triage/internal/database"
)

// SearchResult is one ranked hit joined with its catalog entry.
type SearchResult struct {
	Rank       int     `json:"rank"`
	PhotoID    string  `json:"photo_id"`
	Filename   string  `json:"filename"`
	Path       string  `json:"path"`
	Similarity float64 `json:"similarity"`
}

// Search embeds query and returns up to k indexed photos ranked by cosine
// similarity. k <= 0 uses the configured default. An empty index yields no
// results.
func (o *Orchestrator) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if k <= 0 {
		k = o.opts.SearchLimit
	}
	k = min(k, constants.MaxSearchLimit)

	vec, err := o.gateway.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	matches, err := o.index.Query(ctx, vec, k)
	if errors.Is(err, database.ErrEmptyIndex) {
		return []SearchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndex, err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		entry, ok := o.catalog.Get(m.PhotoID)
		if !ok || !entry.Indexed {
			o.log.WithField("photo", m.PhotoID).Debug("dropping stale search hit")
			continue
		}
		results = append(results, SearchResult{
			Rank:       len(results) + 1,
			PhotoID:    entry.PhotoID,
			Filename:   entry.Filename,
			Path:       entry.PhotoID,
			Similarity: m.Similarity,
		})
	}

	o.log.WithFields(logrus.Fields{"query": query, "k": k, "results": len(results)}).Debug("search completed")
	return results, nil
}
