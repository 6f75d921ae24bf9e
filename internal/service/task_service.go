package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/events"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/upload"
)

// JobQueue is the enqueue-only side of Queue used by the API.
type JobQueue interface {
	Enqueue(ctx context.Context, job entity.Job) error
}

type TaskService struct {
	repo   repository.TaskRepository
	queue  JobQueue
	stager upload.Stager
	events events.Publisher
	logger *slog.Logger
}

func NewTaskService(repo repository.TaskRepository, queue JobQueue, stager upload.Stager, pub events.Publisher, logger *slog.Logger) *TaskService {
	if pub == nil {
		pub = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{repo: repo, queue: queue, stager: stager, events: pub, logger: logger}
}

type SubmitRequest struct {
	FileName string
	Query    string
	File     io.Reader
}

// Submit stages the upload, creates a PENDING task and enqueues it.
// When enqueueing fails the task is withdrawn: the record and the upload are
// removed and the caller gets the error, so no task sits in PENDING forever
// and status is only ever changed by workers.
func (s *TaskService) Submit(ctx context.Context, req SubmitRequest) (*entity.Task, error) {
	query := entity.NormalizeQuery(req.Query)
	id := uuid.NewString()

	ref, err := s.stager.Save(ctx, req.FileName, req.File)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	task, err := s.repo.Create(ctx, id, req.FileName, query)
	if err != nil {
		s.discard(ctx, ref)
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created", slog.String("task_id", id), slog.String("file_name", req.FileName))
	s.publish(ctx, events.NewTaskEvent(events.TypeTaskCreated, id, entity.StatusPending))

	if err := s.queue.Enqueue(ctx, entity.Job{TaskID: id, FilePath: ref, Query: query}); err != nil {
		err = fmt.Errorf("enqueue task: %w", err)
		s.withdraw(ctx, id, err)
		s.discard(ctx, ref)
		return nil, err
	}
	s.logger.Info("task queued", slog.String("task_id", id))
	return task, nil
}

// Get returns repository.ErrNotFound for ids that are not UUIDs.
func (s *TaskService) Get(ctx context.Context, id string) (*entity.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *TaskService) withdraw(ctx context.Context, id string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.DeletePending(ctx, id); err != nil {
		s.logger.Error("withdraw task", slog.String("task_id", id), slog.String("error", err.Error()))
		return
	}
	s.logger.Warn("task withdrawn", slog.String("task_id", id), slog.String("reason", cause.Error()))
	ev := events.NewTaskEvent(events.TypeTaskWithdrawn, id, entity.StatusPending)
	ev.Error = cause.Error()
	s.publish(ctx, ev)
}

func (s *TaskService) discard(ctx context.Context, ref string) {
	if err := s.stager.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Warn("could not remove staged upload", slog.String("ref", ref), slog.String("error", err.Error()))
	}
}

func (s *TaskService) publish(ctx context.Context, ev events.TaskEvent) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish task event", slog.String("task_id", ev.TaskID), slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
