// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-catalog/internal/catalog"
)

// TaskStore keeps task metadata in memory. Tasks are transient records
// scoped to the process lifetime.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]catalog.Task
	clock catalog.Clock
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore(clock catalog.Clock) *TaskStore {
	return &TaskStore{
		tasks: make(map[string]catalog.Task),
		clock: clock,
	}
}

// CreateTask stores a new task in queued status.
func (s *TaskStore) CreateTask(_ context.Context, task catalog.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	if task.Status == "" {
		task.Status = catalog.TaskStatusQueued
	}
	if task.Submitted.IsZero() {
		task.Submitted = s.now()
	}
	s.tasks[task.ID] = task
	return nil
}

// UpdateTaskStatus transitions a task and records its result. Started
// and finished timestamps are stamped on the matching transitions, and
// failures keep both the error text and its classification.
func (s *TaskStore) UpdateTaskStatus(
	_ context.Context,
	taskID string,
	status catalog.TaskStatus,
	taskErr error,
	course *catalog.Course,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrTaskNotFound, taskID)
	}
	task.Status = status
	task.ErrorText = ""
	task.ErrorKind = catalog.KindNone
	if taskErr != nil {
		task.ErrorText = taskErr.Error()
		task.ErrorKind = catalog.KindOf(taskErr)
	}
	if course != nil {
		copied := *course
		task.Course = &copied
	}
	now := s.now()
	if status == catalog.TaskStatusRunning && task.Started == nil {
		task.Started = pointerTime(now)
	}
	if isTerminal(status) {
		task.Finished = pointerTime(now)
	}
	s.tasks[taskID] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (catalog.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return catalog.Task{}, fmt.Errorf("%w: %s", catalog.ErrTaskNotFound, taskID)
	}
	return task, nil
}

func (s *TaskStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status catalog.TaskStatus) bool {
	switch status {
	case catalog.TaskStatusSucceeded, catalog.TaskStatusFailed:
		return true
	default:
		return false
	}
}
