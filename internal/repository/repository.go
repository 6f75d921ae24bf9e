package repository

import (
	"context"
	"errors"

	"blood-report-service/internal/entity"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrDuplicateID       = errors.New("task id already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TaskRepository is the document store contract. Implementations:
// postgresql.TaskRepository, mongodb.TaskRepository, memory.TaskRepository.
type TaskRepository interface {
	Create(ctx context.Context, id, fileName, query string) (*entity.Task, error)
	Get(ctx context.Context, id string) (*entity.Task, error)
	// Update sets status and updated_at, and result when it is non-nil.
	// It fails with ErrNotFound for an unknown id and with ErrInvalidTransition
	// when the stored status is not a predecessor of status.
	Update(ctx context.Context, id string, status entity.TaskStatus, result *string) error
	// DeletePending removes a task that never left PENDING. It backs out a
	// submission whose job could not be queued, so no worker ever saw it.
	DeletePending(ctx context.Context, id string) error
}

func StatusStrings(ss []entity.TaskStatus) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, string(s))
	}
	return out
}
