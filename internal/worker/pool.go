package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/service"
)

type JobProcessor interface {
	Process(ctx context.Context, job entity.Job) error
}

type Pool struct {
	queue        service.Queue
	processor    JobProcessor
	workers      int
	claimTimeout time.Duration
	logger       *slog.Logger
}

func NewPool(queue service.Queue, processor JobProcessor, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:        queue,
		processor:    processor,
		workers:      workers,
		claimTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Run claims jobs until ctx is cancelled, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", slog.Int("workers", p.workers))

	deliveries := make(chan *service.Delivery)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for d := range deliveries {
				p.handle(ctx, n, d)
			}
		}(i + 1)
	}

	defer func() {
		close(deliveries)
		wg.Wait()
		p.logger.Info("worker pool stopped")
	}()

	// Listener: claim from queue -> processing, hand to a free worker.
	for {
		d, err := p.queue.ClaimBlocking(ctx, p.claimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, service.ErrNoJob) {
				p.logger.Error("claim job", slog.String("error", err.Error()))
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
			continue
		}

		select {
		case deliveries <- d:
		case <-ctx.Done():
			// claimed but not started; the reaper hands it back
			return
		}
	}
}

func (p *Pool) handle(ctx context.Context, n int, d *service.Delivery) {
	if err := p.processor.Process(ctx, d.Job); err != nil {
		p.logger.Error("process job",
			slog.Int("worker", n),
			slog.String("task_id", d.Job.TaskID),
			slog.String("error", err.Error()),
		)
	}

	if ctx.Err() != nil {
		// interrupted jobs stay claimed so the reaper redelivers them
		return
	}
	// ACK in any case: the task is terminal now, or its failure is logged above.
	if err := p.queue.Ack(ctx, d); err != nil {
		p.logger.Error("ack job", slog.Int("worker", n), slog.String("task_id", d.Job.TaskID), slog.String("error", err.Error()))
	}
}
