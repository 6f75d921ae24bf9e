package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/repository"
)

// TaskRepository keeps tasks in process memory. It backs single-process mode and tests.
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]entity.Task
	now   func() time.Time
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{
		tasks: make(map[string]entity.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *TaskRepository) Create(_ context.Context, id, fileName, query string) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return nil, repository.ErrDuplicateID
	}
	now := r.now()
	t := entity.Task{
		ID:        id,
		FileName:  fileName,
		Query:     query,
		Status:    entity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = t
	return &t, nil
}

func (r *TaskRepository) Get(_ context.Context, id string) (*entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.Result != nil {
		res := *t.Result
		t.Result = &res
	}
	return &t, nil
}

func (r *TaskRepository) Update(_ context.Context, id string, status entity.TaskStatus, result *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !t.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, t.Status, status)
	}
	if status.IsTerminal() && result == nil {
		return fmt.Errorf("%w: %s needs a result", repository.ErrInvalidTransition, status)
	}

	t.Status = status
	t.UpdatedAt = r.now()
	if result != nil {
		res := *result
		t.Result = &res
	}
	r.tasks[id] = t
	return nil
}

func (r *TaskRepository) DeletePending(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Status != entity.StatusPending {
		return fmt.Errorf("%w: cannot delete %s task", repository.ErrInvalidTransition, t.Status)
	}
	delete(r.tasks, id)
	return nil
}
