// Package processing runs folder triage tasks: quality assessment, semantic
// indexing and search over the indexed photos.
//
// Tasks are queued, then running, then completed, failed or cancelled.
// Cancelled is an addition to the three outcomes of a finished run: it marks
// a task stopped by Cancel or Close and, like the others, never changes again.
package processing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/config"
	"github.com/kozaktomas/photo-triage/internal/constants"
	"github.com/kozaktomas/photo-triage/internal/database"
	"github.com/kozaktomas/photo-triage/internal/embedding"
	"github.com/kozaktomas/photo-triage/internal/imaging"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

// Options sizes the worker pool and search defaults.
type Options struct {
	MaxWorkers int
	// BatchSize is the number of embedded photos written to the index per flush
	BatchSize   int
	SearchLimit int
	// UploadDir holds uploaded photos; Clear removes it
	UploadDir string
}

// OptionsFromConfig extracts orchestrator options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxWorkers:  cfg.Processing.MaxWorkers,
		BatchSize:   cfg.Processing.BatchSize,
		SearchLimit: cfg.Search.DefaultLimit,
		UploadDir:   cfg.Processing.UploadDir,
	}
}

// Deps are the services the orchestrator drives. Tasks and Logger are optional.
type Deps struct {
	Engine  *quality.Engine
	Gateway embedding.Gateway
	Index   database.VectorIndex
	Catalog *catalog.Catalog
	Tasks   *TaskStore
	Logger  logrus.FieldLogger
}

// SubmitOptions controls a single task.
type SubmitOptions struct {
	// Force re-embeds photos that are already indexed
	Force bool
}

// Orchestrator owns the task lifecycle. Tasks run one at a time in
// submission order; each task fans its photos out to a bounded worker pool.
type Orchestrator struct {
	opts    Options
	engine  *quality.Engine
	gateway embedding.Gateway
	index   database.VectorIndex
	catalog *catalog.Catalog
	tasks   *TaskStore
	log     logrus.FieldLogger

	// submitMu serializes Submit against Clear
	submitMu sync.Mutex

	queueMu sync.Mutex
	queue   []*Task
	wake    chan struct{}

	baseCtx context.Context
	stop    context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New validates deps and starts the task runner.
func New(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Engine == nil || deps.Gateway == nil || deps.Index == nil || deps.Catalog == nil {
		return nil, errors.New("engine, gateway, index and catalog are required")
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = constants.DefaultMaxWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = constants.DefaultBatchSize
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = constants.DefaultSearchLimit
	}
	if deps.Tasks == nil {
		deps.Tasks = NewTaskStore()
	}
	if deps.Logger == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		deps.Logger = l
	}

	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:    opts,
		engine:  deps.Engine,
		gateway: deps.Gateway,
		index:   deps.Index,
		catalog: deps.Catalog,
		tasks:   deps.Tasks,
		log:     deps.Logger,
		wake:    make(chan struct{}, 1),
		baseCtx: ctx,
		stop:    stop,
	}

	o.wg.Add(1)
	go o.runLoop()
	return o, nil
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Submit lists folder and queues a task for its photos.
func (o *Orchestrator) Submit(ctx context.Context, folder string, opts SubmitOptions) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("%w: invalid folder %q: %v", ErrNotFound, folder, err)
	}

	photos, err := imaging.ListPhotos(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if len(photos) == 0 {
		return "", fmt.Errorf("%w: no supported images in %s", ErrNotFound, abs)
	}
	photos = slices.Compact(photos)

	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if o.isClosed() {
		return "", ErrClosed
	}
	if active := o.tasks.ActiveForFolder(abs); active != nil {
		return "", fmt.Errorf("%w: task %s", ErrTaskConflict, active.id)
	}

	task := newTask(uuid.New().String(), abs, opts.Force, photos)
	o.tasks.Add(task)

	o.queueMu.Lock()
	o.queue = append(o.queue, task)
	o.queueMu.Unlock()
	o.notify()

	o.log.WithFields(logrus.Fields{
		"task_id": task.id,
		"folder":  abs,
		"photos":  len(photos),
		"force":   opts.Force,
	}).Info("task queued")
	return task.id, nil
}

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(id string) (TaskSnapshot, error) {
	t, ok := o.tasks.Get(id)
	if !ok {
		return TaskSnapshot{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Snapshot(), nil
}

// Tasks returns snapshots of all tasks in submission order.
func (o *Orchestrator) Tasks() []TaskSnapshot {
	list := o.tasks.List()
	out := make([]TaskSnapshot, len(list))
	for i, t := range list {
		out[i] = t.Snapshot()
	}
	return out
}

// Cancel stops a queued or running task. In-flight photos finish; the task
// ends cancelled with partial counts.
func (o *Orchestrator) Cancel(id string) error {
	t, ok := o.tasks.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := t.requestCancel(); err != nil {
		return err
	}
	o.log.WithField("task_id", id).Info("task cancellation requested")
	return nil
}

// Wait blocks until the task is terminal or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) (TaskSnapshot, error) {
	t, ok := o.tasks.Get(id)
	if !ok {
		return TaskSnapshot{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	select {
	case <-t.Done():
		return t.Snapshot(), nil
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

// Subscribe registers a listener for task events. The returned function
// unregisters it and closes the channel.
func (o *Orchestrator) Subscribe(id string) (*Task, chan Event, func(), error) {
	t, ok := o.tasks.Get(id)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	ch := t.AddListener()
	return t, ch, func() { t.RemoveListener(ch) }, nil
}

// Catalog lists catalog entries matching f.
func (o *Orchestrator) Catalog(f catalog.Filter) []catalog.Entry {
	return o.catalog.List(f)
}

// CatalogStats summarizes the catalog.
func (o *Orchestrator) CatalogStats() catalog.Stats {
	return o.catalog.Stats()
}

// Photo returns the catalog entry for photoID.
func (o *Orchestrator) Photo(photoID string) (catalog.Entry, error) {
	e, ok := o.catalog.Get(photoID)
	if !ok {
		return catalog.Entry{}, fmt.Errorf("%w: photo %s", ErrNotFound, photoID)
	}
	return e, nil
}

// DefectTypes returns the defect types the quality engine can report.
func (o *Orchestrator) DefectTypes() []quality.DefectType {
	return o.engine.DefectTypes()
}

// Detectors returns the quality detector names in evaluation order.
func (o *Orchestrator) Detectors() []string {
	return o.engine.Detectors()
}

// Reconcile aligns the catalog with the vector index after both were loaded
// from storage. Entries marked indexed without a vector are unmarked, and
// vectors without an indexed catalog entry are deleted.
func (o *Orchestrator) Reconcile(ctx context.Context) (unmarked, orphans int, err error) {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if o.tasks.HasActive() {
		return 0, 0, ErrBusy
	}

	ids, err := o.index.GetUniquePhotoIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrIndex, err)
	}
	stored := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		stored[id] = struct{}{}
	}

	for _, e := range o.catalog.List(catalog.Filter{Kind: catalog.KindAll}) {
		if !e.Indexed {
			continue
		}
		if _, ok := stored[e.PhotoID]; ok {
			delete(stored, e.PhotoID)
			continue
		}
		e.Indexed = false
		if err := o.catalog.Upsert(ctx, e); err != nil {
			o.log.WithError(err).WithField("photo", e.PhotoID).Warn("failed to persist catalog entry")
		}
		unmarked++
	}

	if len(stored) > 0 {
		orphanIDs := slices.Sorted(maps.Keys(stored))
		if err := o.index.DeleteMany(ctx, orphanIDs); err != nil {
			return unmarked, 0, fmt.Errorf("%w: %v", ErrIndex, err)
		}
		orphans = len(orphanIDs)
	}

	if unmarked > 0 || orphans > 0 {
		o.log.WithFields(logrus.Fields{"unmarked": unmarked, "orphans": orphans}).Info("catalog and index reconciled")
	}
	return unmarked, orphans, nil
}

// Clear wipes the catalog, the vector index, finished tasks and uploaded
// files. It is rejected while any task is queued or running.
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if o.tasks.HasActive() {
		return ErrBusy
	}

	var errs []error
	if err := o.catalog.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.index.RemoveAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrIndex, err))
	}
	if o.opts.UploadDir != "" {
		if err := os.RemoveAll(o.opts.UploadDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove uploaded files: %w", err))
		}
	}
	removed := o.tasks.RemoveFinished()

	o.log.WithField("tasks_removed", removed).Info("catalog and index cleared")
	return errors.Join(errs...)
}

// Close cancels queued and running tasks and waits for the runner to exit.
func (o *Orchestrator) Close() error {
	o.submitMu.Lock()
	if o.closed {
		o.submitMu.Unlock()
		return nil
	}
	o.closed = true
	o.submitMu.Unlock()

	for _, t := range o.tasks.List() {
		if t.isActive() {
			_ = t.requestCancel()
		}
	}
	o.stop()
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) isClosed() bool {
	return o.closed
}

func (o *Orchestrator) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// runLoop is the single task slot: it runs queued tasks one at a time in FIFO order.
func (o *Orchestrator) runLoop() {
	defer o.wg.Done()
	for {
		task := o.nextTask()
		if task == nil {
			select {
			case <-o.wake:
				continue
			case <-o.baseCtx.Done():
				return
			}
		}
		if o.baseCtx.Err() != nil {
			task.finish(StatusCancelled, "Orchestrator closed", nil)
			continue
		}
		o.runTask(task)
	}
}

func (o *Orchestrator) nextTask() *Task {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	t := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	return t
}
