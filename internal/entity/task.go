package entity

import (
	"strings"
	"time"
)

// DefaultQuery is used when the client sends no query or only whitespace.
const DefaultQuery = "Summarise my Blood Test Report"

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusProcessing TaskStatus = "PROCESSING"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Predecessors returns the statuses a task may be in right before moving to s.
// PENDING has none: it is only ever written at creation.
func (s TaskStatus) Predecessors() []TaskStatus {
	switch s {
	case StatusProcessing:
		return []TaskStatus{StatusPending}
	case StatusCompleted, StatusFailed:
		return []TaskStatus{StatusProcessing}
	default:
		return nil
	}
}

// CanTransitionTo reports whether s -> next is a legal forward step.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, p := range next.Predecessors() {
		if p == s {
			return true
		}
	}
	return false
}

type Task struct {
	ID        string     `json:"id" bson:"_id"`
	FileName  string     `json:"file_name" bson:"file_name"`
	Query     string     `json:"query" bson:"query"`
	Status    TaskStatus `json:"status" bson:"status"`
	Result    *string    `json:"result" bson:"result"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// Job is the queue message handed from the API to a worker.
type Job struct {
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
	Query    string `json:"query"`
}

// NormalizeQuery trims q and falls back to DefaultQuery when nothing is left.
func NormalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return DefaultQuery
	}
	return q
}
