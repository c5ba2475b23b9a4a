package processing

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-triage/internal/database"
)

var (
	// ErrDecode marks a photo that could not be read or decoded.
	ErrDecode = errors.New("decode error")
	// ErrEmbedding marks a failed embedding request.
	ErrEmbedding = errors.New("embedding error")
	// ErrIndex marks a failed vector index operation.
	ErrIndex = errors.New("index error")
	// ErrNotFound is returned for unknown photos, folders and tasks.
	ErrNotFound = errors.New("not found")
	// ErrTaskNotFound is returned for unknown task IDs.
	ErrTaskNotFound = fmt.Errorf("task %w", ErrNotFound)
	// ErrEmptyIndex is returned by the vector index when nothing is stored.
	ErrEmptyIndex = database.ErrEmptyIndex
	// ErrTaskConflict is returned when the folder already has a queued or running task.
	ErrTaskConflict = errors.New("folder is already being processed")
	// ErrBusy is returned by Clear while a task is queued or running.
	ErrBusy = errors.New("a processing task is active")
	// ErrInvalidQuery is returned for an empty search query.
	ErrInvalidQuery = errors.New("search query must not be empty")
	// ErrTaskNotActive is returned when cancelling a finished task.
	ErrTaskNotActive = errors.New("task is not active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")
)

// Stage names the step of the per-photo pipeline that failed.
type Stage string

const (
	StageDecode Stage = "decode"
	StageEmbed  Stage = "embed"
	StageIndex  Stage = "index"
)

func (s Stage) sentinel() error {
	switch s {
	case StageDecode:
		return ErrDecode
	case StageEmbed:
		return ErrEmbedding
	default:
		return ErrIndex
	}
}

// PhotoError is a failure confined to one photo. errors.Is matches both the
// stage sentinel and the underlying cause.
type PhotoError struct {
	PhotoID string
	Stage   Stage
	Err     error
}

func (e *PhotoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.PhotoID, e.Err)
}

func (e *PhotoError) Unwrap() []error {
	return []error{e.Stage.sentinel(), e.Err}
}
