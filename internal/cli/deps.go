package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"blood-report-service/internal/config"
	"blood-report-service/internal/events"
	"blood-report-service/internal/extract"
	"blood-report-service/internal/llm"
	"blood-report-service/internal/pipeline"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/repository/memory"
	"blood-report-service/internal/repository/mongodb"
	"blood-report-service/internal/repository/postgresql"
	"blood-report-service/internal/search"
	"blood-report-service/internal/service"
	"blood-report-service/internal/upload"
)

// closers runs cleanup funcs in reverse order of registration.
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openStore(ctx context.Context, cfg *config.Config, cl *closers) (repository.TaskRepository, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgresql.NewPool(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		cl.add(pool.Close)
		return postgresql.NewTaskRepository(pool), nil
	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, err
		}
		cl.add(func() { _ = client.Disconnect(context.Background()) })
		coll := client.Database(cfg.Store.MongoDatabase).Collection(mongodb.Collection)
		return mongodb.NewTaskRepository(coll), nil
	default:
		return memory.NewTaskRepository(), nil
	}
}

func openQueue(ctx context.Context, cfg *config.Config, cl *closers) (service.Queue, error) {
	if cfg.Queue.Driver == "memory" {
		return service.NewMemoryQueue(cfg.Queue.MemoryCapacity), nil
	}

	opts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("queue.redis_url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	cl.add(func() { _ = rdb.Close() })

	return service.NewRedisQueue(rdb, service.RedisKeysFor(cfg.Queue.KeyPrefix)), nil
}

func openStager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (upload.Stager, error) {
	if cfg.Upload.Driver == "minio" {
		m := cfg.Upload.Minio
		return upload.NewMinioStager(ctx, upload.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Bucket:    m.Bucket,
			TempDir:   cfg.Upload.Dir,
		})
	}
	return upload.NewLocalStager(cfg.Upload.Dir, cfg.Upload.MinFreeDisk, logger)
}

func newPublisher(cfg *config.Config, cl *closers) events.Publisher {
	if len(cfg.Events.Brokers) == 0 {
		return events.Noop{}
	}
	p := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
	cl.add(func() { _ = p.Close() })
	return p
}

func newRunner(cfg *config.Config, logger *slog.Logger) (*pipeline.Runner, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("llm.api_key is required (BLOODREPORT_LLM_API_KEY or GEMINI_API_KEY)")
	}
	client := llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	completer := llm.NewRetrying(client,
		llm.WithMaxAttempts(cfg.LLM.MaxRetries),
		llm.WithDelay(cfg.LLM.RetryDelay),
		llm.WithLogger(logger),
	)

	var searcher search.Searcher
	if cfg.Search.APIKey != "" {
		searcher = search.NewSerper(cfg.Search.APIKey,
			search.WithURL(cfg.Search.URL),
			search.WithResults(cfg.Search.Results),
		)
	} else {
		logger.Info("search disabled: no search.api_key")
	}

	stages := pipeline.NewStages(completer, extract.NewPDF(), searcher, logger)
	return pipeline.NewRunner(stages,
		pipeline.WithParallelPlans(cfg.Pipeline.ParallelPlans),
		pipeline.WithLogger(logger),
	), nil
}
