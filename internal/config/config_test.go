package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-report-service/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, 20*datasize.MB, cfg.HTTP.MaxUploadSize)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "blood_report_db", cfg.Store.MongoDatabase)
	assert.Equal(t, "redis", cfg.Queue.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.LLM.RetryDelay)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.True(t, cfg.Pipeline.ParallelPlans)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Worker.JobTimeout)
	assert.Empty(t, cfg.Events.Brokers)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	t.Setenv("BLOODREPORT_WORKER_CONCURRENCY", "8")
	t.Setenv("BLOODREPORT_HTTP_MAX_UPLOAD_SIZE", "5MB")
	t.Setenv("BLOODREPORT_LLM_RETRY_DELAY", "250ms")
	t.Setenv("BLOODREPORT_EVENTS_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("BLOODREPORT_STORE_DRIVER", "memory")

	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 5*datasize.MB, cfg.HTTP.MaxUploadSize)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.RetryDelay)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("SERPER_API_KEY", "serper-key")
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("MONGO_DB_NAME", "reports")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	assert.Equal(t, "serper-key", cfg.Search.APIKey)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.MongoURI)
	assert.Equal(t, "reports", cfg.Store.MongoDatabase)
	assert.Equal(t, "redis://cache:6379/1", cfg.Queue.RedisURL)
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "legacy")
	t.Setenv("BLOODREPORT_LLM_API_KEY", "prefixed")

	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.LLM.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloodreport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
  max_upload_size: 1MB
store:
  driver: mongo
worker:
  job_timeout: 2m
`), 0o600))

	vp := config.New()
	used, err := config.ReadFile(vp, path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	cfg, err := config.Load(vp)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, datasize.MB, cfg.HTTP.MaxUploadSize)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"unknown store":      {"BLOODREPORT_STORE_DRIVER", "sqlite"},
		"unknown queue":      {"BLOODREPORT_QUEUE_DRIVER", "sqs"},
		"zero workers":       {"BLOODREPORT_WORKER_CONCURRENCY", "0"},
		"bad size":           {"BLOODREPORT_HTTP_MAX_UPLOAD_SIZE", "lots"},
		"visibility too low": {"BLOODREPORT_QUEUE_VISIBILITY_TIMEOUT", "1m"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := config.Load(config.New())
			assert.Error(t, err)
		})
	}
}
