package worker

import (
	"context"
	"log/slog"
	"time"

	"blood-report-service/internal/service"
	"blood-report-service/internal/telemetry"
)

type ReaperConfig struct {
	Interval time.Duration
	// Visibility must exceed the job timeout, or running jobs get delivered twice.
	Visibility time.Duration
	Batch      int64
}

// RunReaper periodically returns stale claims to the queue until ctx ends.
func RunReaper(ctx context.Context, queue service.Queue, cfg ReaperConfig, logger *slog.Logger) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := queue.RequeueStale(ctx, cfg.Visibility, cfg.Batch)
			if err != nil {
				logger.Error("requeue stale jobs", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				telemetry.WorkerRequeuedTotal.Add(float64(n))
				logger.Info("requeued stale jobs", slog.Int64("count", n))
			}
		}
	}
}
