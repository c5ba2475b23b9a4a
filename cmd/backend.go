package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/ai"
	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/config"
	"github.com/kozaktomas/photo-triage/internal/database"
	"github.com/kozaktomas/photo-triage/internal/database/postgres"
	"github.com/kozaktomas/photo-triage/internal/database/sqlite"
	"github.com/kozaktomas/photo-triage/internal/embedding"
	"github.com/kozaktomas/photo-triage/internal/processing"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

// embeddingBurst is the token bucket size of the embedding rate limiter.
const embeddingBurst = 4

// backend wires storage, the embedding gateway and the orchestrator for a command.
type backend struct {
	cfg  *config.Config
	log  logrus.FieldLogger
	orch *processing.Orchestrator

	// exactly one of pool or memIndex is set
	pool     *postgres.Pool
	embRepo  *postgres.EmbeddingRepository
	memIndex *database.MemoryIndex
	sqlite   *sqlite.CatalogStore
}

// openBackend picks PostgreSQL when DATABASE_URL is set, and an in-memory
// index (optionally persisted to HNSW_EMBEDDING_INDEX_PATH) with an optional
// SQLite catalog otherwise.
func openBackend(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts processing.Options) (*backend, error) {
	b := &backend{cfg: cfg, log: log}

	index, store, err := b.openStorage(ctx)
	if err != nil {
		b.closeStorage()
		return nil, err
	}

	cat := catalog.New(store)
	n, err := cat.Load(ctx)
	if err != nil {
		b.closeStorage()
		return nil, err
	}
	log.WithField("entries", n).Debug("catalog loaded")

	gateway, err := buildGateway(ctx, cfg, log)
	if err != nil {
		b.closeStorage()
		return nil, err
	}

	orch, err := processing.New(opts, processing.Deps{
		Engine:  quality.NewEngine(cfg.Quality),
		Gateway: gateway,
		Index:   index,
		Catalog: cat,
		Logger:  log,
	})
	if err != nil {
		b.closeStorage()
		return nil, err
	}
	b.orch = orch

	// A catalog without a store starts empty and would orphan every vector
	if store != nil {
		if _, _, err := orch.Reconcile(ctx); err != nil {
			log.WithError(err).Warn("failed to reconcile catalog with embedding index")
		}
	}
	return b, nil
}

func (b *backend) openStorage(ctx context.Context) (database.VectorIndex, catalog.Store, error) {
	dbCfg := &b.cfg.Database

	if dbCfg.URL != "" {
		b.log.Info("connecting to PostgreSQL")
		pool, err := postgres.Open(ctx, dbCfg, b.log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		b.pool = pool
		b.embRepo = postgres.NewEmbeddingRepository(pool, b.cfg.Embedding.Model)

		n, err := b.embRepo.EnableHNSW(ctx, dbCfg.HNSWEmbeddingIndexPath)
		if err != nil {
			b.log.WithError(err).Warn("failed to build embedding HNSW index, search will use PostgreSQL queries")
		} else {
			b.log.WithField("embeddings", n).Info("embedding HNSW index ready")
		}
		return b.embRepo, postgres.NewPhotoRepository(pool), nil
	}

	b.memIndex = database.NewMemoryIndex(b.cfg.Embedding.Model)
	if path := dbCfg.HNSWEmbeddingIndexPath; path != "" {
		if err := b.memIndex.Load(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, nil, fmt.Errorf("failed to load embedding index: %w", err)
			}
			b.log.WithField("path", path).Info("no saved embedding index, starting empty")
		} else {
			n, _ := b.memIndex.Count(ctx)
			b.log.WithFields(logrus.Fields{"path": path, "embeddings": n}).Info("embedding index loaded")
		}
	}

	if dbCfg.CatalogPath == "" {
		return b.memIndex, nil, nil
	}
	store, err := sqlite.Open(dbCfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	b.sqlite = store
	return b.memIndex, store, nil
}

// buildGateway layers rate limiting and query translation over the HTTP client.
func buildGateway(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (embedding.Gateway, error) {
	var gateway embedding.Gateway = embedding.NewClient(cfg.Embedding.URL)
	gateway = embedding.NewRateLimited(gateway, cfg.Embedding.RateLimit, embeddingBurst)

	translator, err := ai.NewTranslator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}
	if translator != nil {
		log.WithField("provider", translator.Name()).Info("query translation enabled")
	}
	return embedding.NewTranslating(gateway, translator, log), nil
}

// saveIndex persists the in-memory graph if a path is configured.
func (b *backend) saveIndex() error {
	path := b.cfg.Database.HNSWEmbeddingIndexPath
	switch {
	case b.memIndex != nil && path != "":
		if err := b.memIndex.Save(path); err != nil {
			return fmt.Errorf("failed to save embedding index: %w", err)
		}
		b.log.WithField("path", path).Info("embedding index saved")
	case b.embRepo != nil && b.embRepo.HNSWEnabled():
		if err := b.embRepo.SaveHNSWIndex(); err != nil {
			return fmt.Errorf("failed to save embedding HNSW index: %w", err)
		}
	}
	return nil
}

// Close stops the orchestrator, saves the index and closes the stores.
func (b *backend) Close() error {
	var errs []error
	if b.orch != nil {
		errs = append(errs, b.orch.Close())
	}
	errs = append(errs, b.saveIndex())
	errs = append(errs, b.closeStorage())
	return errors.Join(errs...)
}

func (b *backend) closeStorage() error {
	var errs []error
	if b.sqlite != nil {
		errs = append(errs, b.sqlite.Close())
		b.sqlite = nil
	}
	if b.pool != nil {
		errs = append(errs, b.pool.Close())
		b.pool = nil
	}
	return errors.Join(errs...)
}
