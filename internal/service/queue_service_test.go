package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/service"
)

func TestRedisKeysFor(t *testing.T) {
	keys := service.RedisKeysFor("bloodreport:jobs")
	assert.Equal(t, service.RedisKeys{
		Queue:      "bloodreport:jobs",
		Processing: "bloodreport:jobs:processing",
		Claims:     "bloodreport:jobs:claims",
	}, keys)
}

// Needs a disposable Redis: BLOODREPORT_TEST_REDIS_ADDR=localhost:6379
func redisQueue(t *testing.T) service.Queue {
	t.Helper()
	addr := os.Getenv("BLOODREPORT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BLOODREPORT_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	prefix := "test:" + uuid.NewString()
	keys := service.RedisKeysFor(prefix)
	t.Cleanup(func() { rdb.Del(context.Background(), keys.Queue, keys.Processing, keys.Claims) })
	return service.NewRedisQueue(rdb, keys)
}

func TestRedisQueue_EnqueueClaimAck(t *testing.T) {
	ctx := context.Background()
	q := redisQueue(t)

	job := entity.Job{TaskID: uuid.NewString(), FilePath: "data/blood_test_report_x.pdf", Query: "q"}
	require.NoError(t, q.Enqueue(ctx, job))

	d, err := q.ClaimBlocking(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job, d.Job)
	require.NoError(t, q.Ack(ctx, d))

	moved, err := q.RequeueStale(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, moved)

	_, err = q.ClaimBlocking(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, service.ErrNoJob)
}

func TestRedisQueue_ReaperRedeliversUnackedClaims(t *testing.T) {
	ctx := context.Background()
	q := redisQueue(t)

	job := entity.Job{TaskID: uuid.NewString(), FilePath: "f", Query: "q"}
	require.NoError(t, q.Enqueue(ctx, job))
	_, err := q.ClaimBlocking(ctx, 2*time.Second)
	require.NoError(t, err)

	moved, err := q.RequeueStale(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, moved, "fresh claims stay with their worker")

	time.Sleep(10 * time.Millisecond)
	moved, err = q.RequeueStale(ctx, time.Millisecond, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	d, err := q.ClaimBlocking(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job.TaskID, d.Job.TaskID)
	require.NoError(t, q.Ack(ctx, d))
}
