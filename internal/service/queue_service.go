package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"blood-report-service/internal/entity"
)

// ErrNoJob is returned by ClaimBlocking when the timeout passes with nothing to claim.
var ErrNoJob = errors.New("queue: no job available")

// Delivery is a claimed job. It must be acked once processing ends.
type Delivery struct {
	Job entity.Job
	// receipt identifies the claimed entry for Ack.
	receipt string
}

type Queue interface {
	Enqueue(ctx context.Context, job entity.Job) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// RequeueStale moves claims older than visibility back to the queue.
	RequeueStale(ctx context.Context, visibility time.Duration, limit int64) (int64, error)
}

type RedisKeys struct {
	Queue      string
	Processing string
	// Claims maps a raw message to the unix millis it was claimed at.
	Claims string
}

// RedisKeysFor derives the three keys from one prefix, e.g. "bloodreport:jobs".
func RedisKeysFor(prefix string) RedisKeys {
	return RedisKeys{
		Queue:      prefix,
		Processing: prefix + ":processing",
		Claims:     prefix + ":claims",
	}
}

// redisQueue is a reliable queue on Redis lists.
// Claim: BRPOPLPUSH queue -> processing, claim time stored in the claims hash
// Ack:   LREM from processing + HDEL claim
type redisQueue struct {
	rdb  *redis.Client
	keys RedisKeys
	now  func() time.Time
}

func NewRedisQueue(rdb *redis.Client, keys RedisKeys) Queue {
	return &redisQueue{rdb: rdb, keys: keys, now: time.Now}
}

func (q *redisQueue) Enqueue(ctx context.Context, job entity.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.keys.Queue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", job.TaskID, err)
	}
	return nil
}

// ClaimBlocking waits in short slots so a cancelled ctx is noticed promptly.
// timeout <= 0 waits until ctx is done.
func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := 1 * time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wait := slot
		if !forever {
			remain := time.Until(deadline)
			if remain <= 0 {
				return nil, ErrNoJob
			}
			if remain < wait {
				wait = remain
			}
		}

		raw, err := q.rdb.BRPopLPush(ctx, q.keys.Queue, q.keys.Processing, wait).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := q.rdb.HSet(ctx, q.keys.Claims, raw, q.now().UnixMilli()).Err(); err != nil {
			// without a claim time the reaper treats the entry as freshly claimed
			return nil, fmt.Errorf("record claim: %w", err)
		}

		var job entity.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// poison message: drop it so it is not redelivered forever
			_ = q.ack(ctx, raw)
			return nil, fmt.Errorf("decode job %q: %w", raw, err)
		}
		return &Delivery{Job: job, receipt: raw}, nil
	}
}

func (q *redisQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.ack(ctx, d.receipt)
}

func (q *redisQueue) ack(ctx context.Context, raw string) error {
	if err := q.rdb.LRem(ctx, q.keys.Processing, 1, raw).Err(); err != nil {
		return err
	}
	_ = q.rdb.HDel(ctx, q.keys.Claims, raw).Err()
	return nil
}

// RequeueStale is the reaper: at-least-once delivery for workers that died mid-job.
func (q *redisQueue) RequeueStale(ctx context.Context, visibility time.Duration, limit int64) (int64, error) {
	entries, err := q.rdb.LRange(ctx, q.keys.Processing, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := q.now().Add(-visibility).UnixMilli()
	var moved int64
	for _, raw := range entries {
		if limit > 0 && moved >= limit {
			break
		}

		claimed, err := q.rdb.HGet(ctx, q.keys.Claims, raw).Result()
		if errors.Is(err, redis.Nil) {
			// claimed but the timestamp never landed; start its clock now
			_ = q.rdb.HSetNX(ctx, q.keys.Claims, raw, q.now().UnixMilli()).Err()
			continue
		}
		if err != nil {
			return moved, err
		}
		at, err := strconv.ParseInt(claimed, 10, 64)
		if err == nil && at > cutoff {
			continue
		}

		// only the caller that removes the entry may push it back
		n, err := q.rdb.LRem(ctx, q.keys.Processing, 1, raw).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.keys.Queue, raw).Err(); err != nil {
			return moved, err
		}
		_ = q.rdb.HDel(ctx, q.keys.Claims, raw).Err()
		moved++
	}
	return moved, nil
}
