package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"blood-report-service/internal/config"
	"blood-report-service/internal/events"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/service"
	"blood-report-service/internal/telemetry"
	"blood-report-service/internal/upload"
	"blood-report-service/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start pipeline workers consuming the job queue",
	PreRunE: bindFlags(
		flagBinding{"worker.concurrency", "concurrency"},
		flagBinding{"worker.job_timeout", "job-timeout"},
		flagBinding{"worker.metrics_addr", "metrics-addr"},
	),
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().Int("concurrency", 4, "number of jobs processed in parallel")
	workerCmd.Flags().Duration("job-timeout", 10*time.Minute, "wall-clock budget per job")
	workerCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address; empty disables it")
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig("worker")
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "memory" || cfg.Queue.Driver == "memory" {
		return errors.New("memory store or queue only works within one process: use the serve command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "bloodreport-worker", cfg.Telemetry.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	var cl closers
	defer cl.run()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	repo, err := openStore(initCtx, cfg, &cl)
	if err != nil {
		return err
	}
	queue, err := openQueue(initCtx, cfg, &cl)
	if err != nil {
		return err
	}
	stager, err := openStager(initCtx, cfg, logger)
	if err != nil {
		return err
	}
	pub := newPublisher(cfg, &cl)

	telemetry.StartMetricsServer(ctx, cfg.Worker.MetricsAddr, logger)
	return runWorkers(ctx, cfg, repo, queue, stager, pub, logger)
}

// runWorkers runs the pool and the reaper until ctx is cancelled.
func runWorkers(
	ctx context.Context,
	cfg *config.Config,
	repo repository.TaskRepository,
	queue service.Queue,
	stager upload.Stager,
	pub events.Publisher,
	logger *slog.Logger,
) error {
	runner, err := newRunner(cfg, logger)
	if err != nil {
		return err
	}

	processor := worker.NewProcessor(repo, runner, stager,
		worker.WithJobTimeout(cfg.Worker.JobTimeout),
		worker.WithEvents(pub),
		worker.WithLogger(logger),
	)
	pool := worker.NewPool(queue, processor, cfg.Worker.Concurrency, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.RunReaper(ctx, queue, worker.ReaperConfig{
			Interval:   cfg.Queue.ReapInterval,
			Visibility: cfg.Queue.VisibilityTimeout,
		}, logger)
	}()

	pool.Run(ctx)
	wg.Wait()
	return nil
}
