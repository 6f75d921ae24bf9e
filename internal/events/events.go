package events

import (
	"context"
	"time"

	"blood-report-service/internal/entity"
)

const (
	TypeTaskCreated       = "task.created"
	TypeTaskStatusChanged = "task.status_changed"
	TypeTaskWithdrawn     = "task.withdrawn"
)

// TaskEvent is emitted on task creation, on every status write, and when a
// submission is withdrawn because its job could not be queued.
type TaskEvent struct {
	Type      string            `json:"type"`
	TaskID    string            `json:"task_id"`
	Status    entity.TaskStatus `json:"status"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewTaskEvent(typ, taskID string, status entity.TaskStatus) TaskEvent {
	return TaskEvent{Type: typ, TaskID: taskID, Status: status, Timestamp: time.Now().UTC()}
}

// Publisher delivers task events. Publishing is best effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev TaskEvent) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, TaskEvent) error { return nil }
func (Noop) Close() error                             { return nil }
