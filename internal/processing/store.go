package processing

import "sync"

// TaskStore keeps every task of the orchestrator in submission order.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

// Add registers a task.
func (s *TaskStore) Add(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.id] = t
	s.order = append(s.order, t.id)
}

// Get returns the task with the given ID.
func (s *TaskStore) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List returns tasks in submission order.
func (s *TaskStore) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out
}

// ActiveForFolder returns the queued or running task for folder, if any.
func (s *TaskStore) ActiveForFolder(folder string) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.folder == folder && t.isActive() {
			return t
		}
	}
	return nil
}

// HasActive reports whether any task is queued or running.
func (s *TaskStore) HasActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.isActive() {
			return true
		}
	}
	return false
}

// RemoveFinished drops terminal tasks and returns how many were removed.
func (s *TaskStore) RemoveFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.tasks[id].GetStatus().Terminal() {
			delete(s.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}
