package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/repository"
)

const uniqueViolation = "23505"

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *TaskRepository) Create(ctx context.Context, id, fileName, query string) (*entity.Task, error) {
	now := time.Now().UTC()

	const q = `
INSERT INTO analysis_tasks (id, file_name, query, status, result, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULL, $5, $5);
`
	if _, err := r.pool.Exec(ctx, q, id, fileName, query, string(entity.StatusPending), now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicateID
		}
		return nil, fmt.Errorf("create task %s: %w", id, err)
	}

	return &entity.Task{
		ID:        id,
		FileName:  fileName,
		Query:     query,
		Status:    entity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*entity.Task, error) {
	const q = `
SELECT id, file_name, query, status, result, created_at, updated_at
FROM analysis_tasks
WHERE id = $1;
`
	var (
		task       entity.Task
		statusText string
	)
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&task.ID,
		&task.FileName,
		&task.Query,
		&statusText,
		&task.Result, // NULL => nil
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	task.Status = entity.TaskStatus(statusText)
	if !task.Status.Valid() {
		return nil, fmt.Errorf("get task %s: unknown stored status %q", id, statusText)
	}
	return &task, nil
}

func (r *TaskRepository) Update(ctx context.Context, id string, status entity.TaskStatus, result *string) error {
	if status.IsTerminal() && result == nil {
		return fmt.Errorf("%w: %s needs a result", repository.ErrInvalidTransition, status)
	}

	// COALESCE keeps the stored result when none is given.
	const q = `
UPDATE analysis_tasks
SET status = $2, result = COALESCE($3, result), updated_at = $4
WHERE id = $1 AND status = ANY($5);
`
	prev := repository.StatusStrings(status.Predecessors())
	tag, err := r.pool.Exec(ctx, q, id, string(status), result, time.Now().UTC(), prev)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: either the row is missing or its status forbids the step.
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, current.Status, status)
}

func (r *TaskRepository) DeletePending(ctx context.Context, id string) error {
	const q = `DELETE FROM analysis_tasks WHERE id = $1 AND status = $2;`
	tag, err := r.pool.Exec(ctx, q, id, string(entity.StatusPending))
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot delete %s task", repository.ErrInvalidTransition, current.Status)
}
