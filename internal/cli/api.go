package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"blood-report-service/internal/config"
	"blood-report-service/internal/service"
	"blood-report-service/internal/telemetry"
	httptransport "blood-report-service/internal/transport/http"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP API (uploads and result polling)",
	PreRunE: bindFlags(
		flagBinding{"http.addr", "http-addr"},
		flagBinding{"http.auth_token", "auth-token"},
	),
	RunE: runAPI,
}

func init() {
	apiCmd.Flags().String("http-addr", ":8000", "HTTP listen address")
	apiCmd.Flags().String("auth-token", "", "require this bearer token on /analyze and /result")
}

func runAPI(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig("api")
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "memory" || cfg.Queue.Driver == "memory" {
		return errors.New("memory store or queue only works within one process: use the serve command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "bloodreport-api", cfg.Telemetry.OTelEndpoint)
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
	return serveHTTP(ctx, cfg, svc, logger)
}

// serveHTTP blocks until ctx is cancelled, then shuts the server down gracefully.
func serveHTTP(ctx context.Context, cfg *config.Config, svc *service.TaskService, logger *slog.Logger) error {
	h := httptransport.NewHandler(svc, int64(cfg.HTTP.MaxUploadSize.Bytes()), logger)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httptransport.Routes(h, logger, cfg.HTTP.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	return nil
}
