package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"blood-report-service/internal/service"
	"blood-report-service/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the workers in one process",
	Long: `Run the HTTP API and the pipeline workers in one process.

This is the only mode that supports store.driver=memory and queue.driver=memory.`,
	PreRunE: bindFlags(
		flagBinding{"http.addr", "http-addr"},
		flagBinding{"worker.concurrency", "concurrency"},
	),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", ":8000", "HTTP listen address")
	serveCmd.Flags().Int("concurrency", 4, "number of jobs processed in parallel")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig("bloodreport")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "bloodreport", cfg.Telemetry.OTelEndpoint)
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

	svc := service.NewTaskService(repo, queue, stager, pub, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(gctx, cfg, svc, logger) })
	g.Go(func() error { return runWorkers(gctx, cfg, repo, queue, stager, pub, logger) })
	return g.Wait()
}
