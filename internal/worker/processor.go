package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/events"
	"blood-report-service/internal/pipeline"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/telemetry"
	"blood-report-service/internal/upload"
)

const DefaultJobTimeout = 10 * time.Minute

type TaskRepo interface {
	Get(ctx context.Context, id string) (*entity.Task, error)
	Update(ctx context.Context, id string, status entity.TaskStatus, result *string) error
}

type ReportRunner interface {
	Run(ctx context.Context, filePath, query string) (*pipeline.Report, error)
}

type Processor struct {
	repo       TaskRepo
	runner     ReportRunner
	stager     upload.Stager
	events     events.Publisher
	logger     *slog.Logger
	jobTimeout time.Duration
}

type ProcessorOption func(*Processor)

func WithJobTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

func WithEvents(pub events.Publisher) ProcessorOption {
	return func(p *Processor) {
		if pub != nil {
			p.events = pub
		}
	}
}

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewProcessor(repo TaskRepo, runner ReportRunner, stager upload.Stager, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:       repo,
		runner:     runner,
		stager:     stager,
		events:     events.Noop{},
		logger:     slog.Default(),
		jobTimeout: DefaultJobTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs one job to a terminal status. Redelivered jobs are safe:
// a finished task is left untouched and a PROCESSING task is resumed.
// The staged upload is removed once the task is terminal.
func (p *Processor) Process(ctx context.Context, job entity.Job) error {
	start := time.Now()
	log := p.logger.With(slog.String("task_id", job.TaskID))

	ctx, span := otel.Tracer("blood-report-service/worker").Start(ctx, "worker.process")
	span.SetAttributes(attribute.String("task.id", job.TaskID))
	defer span.End()

	removeFile := true
	defer func() {
		if !removeFile {
			return
		}
		if rmErr := p.stager.Remove(context.WithoutCancel(ctx), job.FilePath); rmErr != nil {
			log.Warn("could not remove uploaded file", slog.String("file", job.FilePath), slog.String("error", rmErr.Error()))
		} else {
			log.Debug("cleaned up uploaded file", slog.String("file", job.FilePath))
		}
	}()

	task, err := p.repo.Get(ctx, job.TaskID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			removeFile = false
		}
		return fmt.Errorf("load task %s: %w", job.TaskID, err)
	}

	switch task.Status {
	case entity.StatusCompleted, entity.StatusFailed:
		log.Info("task already finished, skipping", slog.String("status", string(task.Status)))
		telemetry.WorkerTasksProcessed.WithLabelValues("skipped").Inc()
		return nil
	case entity.StatusProcessing:
		log.Info("resuming task left in processing")
	default:
		if err := p.repo.Update(ctx, job.TaskID, entity.StatusProcessing, nil); err != nil {
			// another worker won the claim and still needs the file
			removeFile = false
			return fmt.Errorf("mark processing: %w", err)
		}
		p.publish(ctx, log, events.NewTaskEvent(events.TypeTaskStatusChanged, job.TaskID, entity.StatusProcessing))
	}

	telemetry.WorkerTasksInFlight.Inc()
	defer telemetry.WorkerTasksInFlight.Dec()
	log.Info("task processing", slog.String("file", job.FilePath))

	report, runErr := p.run(ctx, job)
	if runErr != nil && ctx.Err() != nil {
		// shutting down: leave the task in PROCESSING for redelivery
		removeFile = false
		return runErr
	}

	// terminal writes must land even if ctx is cancelled from here on
	writeCtx := context.WithoutCancel(ctx)
	telemetry.WorkerTaskDurationSeconds.Observe(time.Since(start).Seconds())

	if runErr != nil {
		msg := runErr.Error()
		if err := p.repo.Update(writeCtx, job.TaskID, entity.StatusFailed, &msg); err != nil {
			removeFile = false
			return fmt.Errorf("mark failed: %w", err)
		}
		telemetry.WorkerTasksProcessed.WithLabelValues(string(entity.StatusFailed)).Inc()
		ev := events.NewTaskEvent(events.TypeTaskStatusChanged, job.TaskID, entity.StatusFailed)
		ev.Error = msg
		p.publish(writeCtx, log, ev)

		span.RecordError(runErr)
		log.Error("task failed",
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("error", msg),
		)
		return runErr
	}

	if err := p.repo.Update(writeCtx, job.TaskID, entity.StatusCompleted, &report.Markdown); err != nil {
		removeFile = false
		return fmt.Errorf("mark completed: %w", err)
	}
	telemetry.WorkerTasksProcessed.WithLabelValues(string(entity.StatusCompleted)).Inc()
	p.publish(writeCtx, log, events.NewTaskEvent(events.TypeTaskStatusChanged, job.TaskID, entity.StatusCompleted))

	log.Info("task completed",
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Any("degraded_stages", report.DegradedStages()),
	)
	return nil
}

func (p *Processor) run(ctx context.Context, job entity.Job) (*pipeline.Report, error) {
	path, release, err := p.stager.Open(ctx, job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()
	return p.runner.Run(runCtx, path, job.Query)
}

func (p *Processor) publish(ctx context.Context, log *slog.Logger, ev events.TaskEvent) {
	if err := p.events.Publish(ctx, ev); err != nil {
		log.Warn("publish task event", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
