package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/database"
	"github.com/kozaktomas/photo-triage/internal/imaging"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

// outcome is the single bucket a photo lands in.
type outcome int

const (
	outcomeFailed outcome = iota
	outcomeBad
	outcomeIndexed
	outcomeSkipped
	outcomeEmbeddingError
	outcomeIndexError
)

// tally accumulates per-photo outcomes from concurrent workers.
type tally struct {
	failed, bad, indexed, skipped, embedErrs, indexErrs atomic.Int64
	upserts                                             atomic.Int64
	done                                                atomic.Int64

	mu       sync.Mutex
	failures []Failure
	defects  map[quality.DefectType]int
	assessed map[string]struct{}
	lastErr  error
}

func newTally() *tally {
	return &tally{
		defects:  make(map[quality.DefectType]int),
		assessed: make(map[string]struct{}),
	}
}

func (t *tally) record(photoID string, o outcome, res *quality.Result, perr *PhotoError) {
	switch o {
	case outcomeFailed:
		t.failed.Add(1)
	case outcomeBad:
		t.bad.Add(1)
	case outcomeIndexed:
		t.indexed.Add(1)
	case outcomeSkipped:
		t.skipped.Add(1)
	case outcomeEmbeddingError:
		t.embedErrs.Add(1)
	case outcomeIndexError:
		t.indexErrs.Add(1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if res != nil {
		t.assessed[photoID] = struct{}{}
		for _, d := range res.DefectTypes {
			t.defects[d]++
		}
	}
	if perr != nil {
		t.failures = append(t.failures, Failure{PhotoID: perr.PhotoID, Stage: perr.Stage, Error: perr.Err.Error()})
		if perr.Stage == StageIndex {
			t.lastErr = perr.Err
		}
	}
}

func (t *tally) result(total int, elapsed time.Duration) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	indexed := int(t.indexed.Load())
	skipped := int(t.skipped.Load())
	embedErrs := int(t.embedErrs.Load())
	indexErrs := int(t.indexErrs.Load())

	failures := slices.Clone(t.failures)
	if failures == nil {
		failures = []Failure{}
	}
	slices.SortFunc(failures, func(a, b Failure) int { return strings.Compare(a.PhotoID, b.PhotoID) })

	defects := make(map[quality.DefectType]int, len(t.defects))
	for k, v := range t.defects {
		defects[k] = v
	}

	return &Result{
		TotalPhotos:     total,
		QualifiedPhotos: indexed + skipped + embedErrs + indexErrs,
		BadPhotos:       int(t.bad.Load()),
		IndexedPhotos:   indexed,
		SkippedPhotos:   skipped,
		FailedPhotos:    int(t.failed.Load()),
		EmbeddingErrors: embedErrs,
		IndexErrors:     indexErrs,
		Failures:        failures,
		DefectCounts:    defects,
		DurationMS:      elapsed.Milliseconds(),
	}
}

// runTask executes one task in the task slot. Panics fail the task.
func (o *Orchestrator) runTask(task *Task) {
	taskCtx, cancel := context.WithCancel(o.baseCtx)
	defer cancel()

	if !task.start(cancel) {
		return
	}

	log := o.log.WithFields(logrus.Fields{"task_id": task.id, "folder": task.folder})
	log.WithField("photos", len(task.photos)).Info("task started")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("task panicked: %v", r)
			task.finish(StatusFailed, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	if _, err := os.Stat(task.folder); err != nil {
		msg := fmt.Sprintf("folder unavailable: %v", err)
		log.WithError(err).Error("task failed")
		task.finish(StatusFailed, msg, &Result{TotalPhotos: len(task.photos), Failures: []Failure{}, DefectCounts: map[quality.DefectType]int{}})
		return
	}

	t := newTally()
	poolErr := o.runPool(taskCtx, task, t, log)
	result := t.result(len(task.photos), time.Since(start))

	switch {
	case poolErr != nil:
		log.WithError(poolErr).Error("task failed")
		task.finish(StatusFailed, poolErr.Error(), result)
		return
	case taskCtx.Err() != nil:
		msg := fmt.Sprintf("Cancelled after %d of %d photos", t.done.Load(), len(task.photos))
		log.WithField("processed", t.done.Load()).Warn("task cancelled")
		task.finish(StatusCancelled, msg, result)
		return
	}

	if upserts := t.upserts.Load(); upserts > 0 && int64(result.IndexErrors) == upserts {
		err := fmt.Errorf("%w: all %d index upserts failed: %v", ErrIndex, upserts, t.lastErr)
		log.WithError(err).Error("task failed")
		task.finish(StatusFailed, err.Error(), result)
		return
	}

	result.PrunedPhotos = o.prune(o.unitContext(), task.folder, t.assessed, log)
	result.DurationMS = time.Since(start).Milliseconds()

	msg := fmt.Sprintf("Processed %d photos: %d qualified, %d defective, %d newly indexed",
		result.TotalPhotos, result.QualifiedPhotos, result.BadPhotos, result.IndexedPhotos)
	log.WithFields(logrus.Fields{
		"qualified": result.QualifiedPhotos,
		"bad":       result.BadPhotos,
		"indexed":   result.IndexedPhotos,
		"skipped":   result.SkippedPhotos,
		"failed":    result.FailedPhotos,
		"pruned":    result.PrunedPhotos,
	}).Info("task completed")
	task.finish(StatusCompleted, msg, result)
}

// unitContext is the context for per-photo work. It keeps the orchestrator's
// values but is never cancelled, so a unit that has started always finishes.
func (o *Orchestrator) unitContext() context.Context {
	return context.WithoutCancel(o.baseCtx)
}

// pendingVector is a qualified photo whose embedding awaits the next index flush.
type pendingVector struct {
	path string
	res  quality.Result
	fp   string
	vec  []float32
	log  logrus.FieldLogger
}

// runPool feeds the task's photos through a bounded queue to MaxWorkers
// workers. Embedded photos go to a single indexer that writes them to the
// index BatchSize at a time. Dispatch stops when the task is cancelled or
// the orchestrator closes; photos a worker has already started still finish.
func (o *Orchestrator) runPool(taskCtx context.Context, task *Task, t *tally, log logrus.FieldLogger) error {
	unitCtx := o.unitContext()
	work := make(chan string, o.opts.MaxWorkers)
	pending := make(chan pendingVector, o.opts.BatchSize)

	indexerDone := make(chan error, 1)
	go func() {
		indexerDone <- o.runIndexer(unitCtx, task, pending, t, log)
	}()

	g, gctx := errgroup.WithContext(o.baseCtx)
	g.SetLimit(o.opts.MaxWorkers)

	for range o.opts.MaxWorkers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker panic: %v", r)
				}
			}()
			for path := range work {
				if taskCtx.Err() != nil {
					// queued but not started
					continue
				}
				if pv := o.processPhoto(unitCtx, task, path, t, log); pv != nil {
					pending <- *pv
					continue
				}
				task.advance(int(t.done.Add(1)))
			}
			return nil
		})
	}

dispatch:
	for _, path := range task.photos {
		select {
		case work <- path:
		case <-taskCtx.Done():
			break dispatch
		case <-gctx.Done():
			break dispatch
		}
	}
	close(work)

	poolErr := g.Wait()
	close(pending)
	return errors.Join(poolErr, <-indexerDone)
}

// runIndexer collects embedded photos and flushes them in batches of
// BatchSize, plus a final partial batch once the workers are done.
func (o *Orchestrator) runIndexer(ctx context.Context, task *Task, pending <-chan pendingVector, t *tally, log logrus.FieldLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexer panic: %v", r)
			for range pending {
				// drained so workers never block on a dead indexer
			}
		}
	}()

	batch := make([]pendingVector, 0, o.opts.BatchSize)
	for pv := range pending {
		batch = append(batch, pv)
		if len(batch) >= o.opts.BatchSize {
			o.flush(ctx, task, batch, t, log)
			batch = batch[:0]
		}
	}
	o.flush(ctx, task, batch, t, log)
	return nil
}

// flush writes batch to the index in one call. When the batch write fails
// each photo is retried alone, so one bad vector does not fail its neighbours.
// Every photo that still fails counts as an index error.
func (o *Orchestrator) flush(ctx context.Context, task *Task, batch []pendingVector, t *tally, log logrus.FieldLogger) {
	if len(batch) == 0 {
		return
	}
	t.upserts.Add(int64(len(batch)))

	embeddings := make([]database.StoredEmbedding, len(batch))
	for i, pv := range batch {
		embeddings[i] = database.StoredEmbedding{PhotoID: pv.path, Embedding: pv.vec, Dim: len(pv.vec)}
	}
	batchErr := o.index.UpsertBatch(ctx, embeddings)
	retry := batchErr != nil && len(batch) > 1
	if retry {
		log.WithError(batchErr).WithField("photos", len(batch)).Warn("batch index write failed, retrying photos one by one")
	}

	for _, pv := range batch {
		err := batchErr
		if retry {
			err = o.index.Upsert(ctx, pv.path, pv.vec)
		}
		if err != nil {
			perr := &PhotoError{PhotoID: pv.path, Stage: StageIndex, Err: err}
			pv.log.WithError(err).Warn("failed to index photo")
			o.saveEntry(ctx, catalog.NewEntry(pv.path, pv.res, false, pv.fp), pv.log)
			t.record(pv.path, outcomeIndexError, &pv.res, perr)
		} else {
			o.saveEntry(ctx, catalog.NewEntry(pv.path, pv.res, true, pv.fp), pv.log)
			t.record(pv.path, outcomeIndexed, &pv.res, nil)
		}
		task.advance(int(t.done.Add(1)))
	}
	log.WithField("photos", len(batch)).Debug("index batch flushed")
}

// processPhoto runs decode, assessment and embedding for one photo. A photo
// that needs indexing is returned for the next flush; every other outcome is
// recorded here. Workers hold no task or catalog lock while decoding or embedding.
func (o *Orchestrator) processPhoto(ctx context.Context, task *Task, path string, t *tally, log logrus.FieldLogger) *pendingVector {
	plog := log.WithField("photo", path)

	img, _, err := imaging.DecodeFile(path)
	if err != nil {
		perr := &PhotoError{PhotoID: path, Stage: StageDecode, Err: err}
		plog.WithError(err).Warn("failed to decode photo")
		t.record(path, outcomeFailed, nil, perr)
		return nil
	}

	res := o.engine.Assess(img)
	fp := imaging.ComputeHashes(img).Fingerprint()
	prev, had := o.catalog.Get(path)
	wasIndexed := had && prev.Indexed

	if res.IsDefective {
		o.saveEntry(ctx, catalog.NewEntry(path, res, false, fp), plog)
		if wasIndexed {
			o.deleteVector(ctx, path, plog)
		}
		plog.WithField("defects", res.DefectTypes).Debug("photo is defective")
		t.record(path, outcomeBad, &res, nil)
		return nil
	}

	if !task.force && wasIndexed && prev.Fingerprint == fp && o.hasVector(ctx, path) {
		o.saveEntry(ctx, catalog.NewEntry(path, res, true, fp), plog)
		t.record(path, outcomeSkipped, &res, nil)
		return nil
	}

	vec, err := o.gateway.EmbedImage(ctx, img)
	if err != nil {
		perr := &PhotoError{PhotoID: path, Stage: StageEmbed, Err: err}
		plog.WithError(err).Warn("failed to embed photo")
		o.saveEntry(ctx, catalog.NewEntry(path, res, false, fp), plog)
		if wasIndexed {
			o.deleteVector(ctx, path, plog)
		}
		t.record(path, outcomeEmbeddingError, &res, perr)
		return nil
	}

	return &pendingVector{path: path, res: res, fp: fp, vec: vec, log: plog}
}

// saveEntry writes through to the catalog. A persistence failure is logged;
// the in-memory entry is kept.
func (o *Orchestrator) saveEntry(ctx context.Context, e catalog.Entry, log logrus.FieldLogger) {
	if err := o.catalog.Upsert(ctx, e); err != nil {
		log.WithError(err).Warn("failed to persist catalog entry")
	}
}

func (o *Orchestrator) deleteVector(ctx context.Context, photoID string, log logrus.FieldLogger) {
	if err := o.index.Delete(ctx, photoID); err != nil {
		log.WithError(err).Warn("failed to delete stale vector")
	}
}

// hasVector reports whether the index still holds photoID.
func (o *Orchestrator) hasVector(ctx context.Context, photoID string) bool {
	has, err := o.index.Has(ctx, photoID)
	return err == nil && has
}

// prune drops catalog entries of folder that were not assessed in this run
// and deletes their vectors.
func (o *Orchestrator) prune(ctx context.Context, folder string, assessed map[string]struct{}, log logrus.FieldLogger) int {
	removed, err := o.catalog.Retain(ctx, folder, assessed)
	if err != nil {
		log.WithError(err).Warn("failed to persist pruned catalog entries")
	}
	if len(removed) == 0 {
		return 0
	}

	ids := make([]string, len(removed))
	for i, e := range removed {
		ids[i] = e.PhotoID
	}
	if err := o.index.DeleteMany(ctx, ids); err != nil {
		log.WithError(err).WithField("photos", len(ids)).Warn("failed to delete pruned vectors")
	}
	log.WithField("pruned", len(removed)).Info("pruned stale catalog entries")
	return len(removed)
}
