package processing

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/photo-triage/internal/constants"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

// TaskStatus represents the lifecycle state of a processing task.
// A task moves from queued to running and ends in exactly one of completed,
// failed or cancelled.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	// StatusCancelled ends a task stopped by Cancel or Close. It is terminal:
	// queued tasks end here without starting, and running tasks end here with
	// partial counts once in-flight photos finish.
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Failure describes one photo that could not be fully processed.
type Failure struct {
	PhotoID string `json:"photo_id"`
	Stage   Stage  `json:"stage"`
	Error   string `json:"error"`
}

// Result holds the aggregate counts of a task. Every submitted photo lands in
// exactly one of failed, bad or qualified; qualified photos are further split
// into indexed, skipped, embedding errors and index errors.
type Result struct {
	TotalPhotos     int                        `json:"total_photos"`
	QualifiedPhotos int                        `json:"qualified_photos"`
	BadPhotos       int                        `json:"bad_photos"`
	IndexedPhotos   int                        `json:"indexed_photos"`
	SkippedPhotos   int                        `json:"skipped_photos"`
	FailedPhotos    int                        `json:"failed_photos"`
	EmbeddingErrors int                        `json:"embedding_errors"`
	IndexErrors     int                        `json:"index_errors"`
	PrunedPhotos    int                        `json:"pruned_photos"`
	Failures        []Failure                  `json:"failures"`
	DefectCounts    map[quality.DefectType]int `json:"defect_counts"`
	DurationMS      int64                      `json:"duration_ms"`
}

// TaskSnapshot is a consistent copy of a task's state.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	Folder      string     `json:"folder"`
	Force       bool       `json:"force"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
}

// Event is pushed to task subscribers.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting.
type EventBroadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes and closes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners without blocking.
func (b *EventBroadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip
		}
	}
}

// Task is a folder processing run. All state changes go through its methods.
type Task struct {
	EventBroadcaster

	id        string
	folder    string
	force     bool
	photos    []string
	createdAt time.Time

	stateMu     sync.RWMutex
	status      TaskStatus
	progress    int
	processed   int
	message     string
	startedAt   time.Time
	completedAt time.Time
	result      *Result
	cancel      context.CancelFunc
	cancelled   bool

	done chan struct{}
}

func newTask(id, folder string, force bool, photos []string) *Task {
	return &Task{
		id:        id,
		folder:    folder,
		force:     force,
		photos:    photos,
		createdAt: time.Now().UTC(),
		status:    StatusQueued,
		message:   "Queued",
		done:      make(chan struct{}),
	}
}

// ID returns the task ID.
func (t *Task) ID() string { return t.id }

// Folder returns the processed folder.
func (t *Task) Folder() string { return t.folder }

// GetStatus returns the current status.
func (t *Task) GetStatus() TaskStatus {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.status
}

// Done is closed once the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Snapshot returns a copy of the task state.
func (t *Task) Snapshot() TaskSnapshot {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()

	s := TaskSnapshot{
		ID:        t.id,
		Folder:    t.folder,
		Force:     t.force,
		Status:    t.status,
		Progress:  t.progress,
		Message:   t.message,
		Total:     len(t.photos),
		Processed: t.processed,
		CreatedAt: t.createdAt,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		s.CompletedAt = &completed
	}
	if t.result != nil {
		r := *t.result
		r.Failures = append([]Failure(nil), t.result.Failures...)
		r.DefectCounts = make(map[quality.DefectType]int, len(t.result.DefectCounts))
		for k, v := range t.result.DefectCounts {
			r.DefectCounts[k] = v
		}
		s.Result = &r
	}
	return s
}

// start moves a queued task to running. It returns false when the task was
// cancelled while queued.
func (t *Task) start(cancel context.CancelFunc) bool {
	t.stateMu.Lock()
	if t.cancelled {
		t.stateMu.Unlock()
		return false
	}
	t.status = StatusRunning
	t.startedAt = time.Now().UTC()
	t.cancel = cancel
	t.message = "Processing photos"
	t.stateMu.Unlock()

	t.SendEvent(Event{Type: "status", Message: "Task started", Data: t.Snapshot()})
	return true
}

// advance records one more attempted photo. Progress never decreases and
// stays below 100 until the task completes.
func (t *Task) advance(done int) {
	total := len(t.photos)

	t.stateMu.Lock()
	if done > t.processed {
		t.processed = done
	}
	p := 0
	if total > 0 {
		p = min(100*t.processed/total, 99)
	}
	if p > t.progress {
		t.progress = p
	}
	progress, processed := t.progress, t.processed
	t.message = "Processing photos"
	t.stateMu.Unlock()

	t.SendEvent(Event{Type: "progress", Data: map[string]int{
		"progress":  progress,
		"processed": processed,
		"total":     total,
	}})
}

// finish moves the task to a terminal status exactly once.
func (t *Task) finish(status TaskStatus, message string, result *Result) {
	t.stateMu.Lock()
	if t.status.Terminal() {
		t.stateMu.Unlock()
		return
	}
	t.status = status
	t.message = message
	t.result = result
	t.completedAt = time.Now().UTC()
	if status == StatusCompleted {
		t.progress = 100
	}
	t.stateMu.Unlock()

	t.SendEvent(Event{Type: string(status), Message: message, Data: t.Snapshot()})
	close(t.done)
}

// requestCancel marks the task cancelled. A running task stops dispatching;
// a queued task is finished immediately.
func (t *Task) requestCancel() error {
	t.stateMu.Lock()
	if t.status.Terminal() {
		t.stateMu.Unlock()
		return ErrTaskNotActive
	}
	t.cancelled = true
	queued := t.status == StatusQueued
	cancel := t.cancel
	t.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if queued {
		t.finish(StatusCancelled, "Cancelled before start", nil)
	}
	return nil
}

func (t *Task) isActive() bool {
	s := t.GetStatus()
	return s == StatusQueued || s == StatusRunning
}
