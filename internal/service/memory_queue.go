package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"blood-report-service/internal/entity"
)

type memoryClaim struct {
	job       entity.Job
	claimedAt time.Time
}

// MemoryQueue is an in-process Queue for single-binary mode and tests.
type MemoryQueue struct {
	jobs chan entity.Job

	mu       sync.Mutex
	seq      int64
	inflight map[string]memoryClaim
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		jobs:     make(chan entity.Job, capacity),
		inflight: make(map[string]memoryClaim),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job entity.Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case job := <-q.jobs:
		q.mu.Lock()
		q.seq++
		receipt := strconv.FormatInt(q.seq, 10)
		q.inflight[receipt] = memoryClaim{job: job, claimedAt: time.Now()}
		q.mu.Unlock()
		return &Delivery{Job: job, receipt: receipt}, nil
	case <-expired:
		return nil, ErrNoJob
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	delete(q.inflight, d.receipt)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) RequeueStale(ctx context.Context, visibility time.Duration, limit int64) (int64, error) {
	cutoff := time.Now().Add(-visibility)

	q.mu.Lock()
	var stale []entity.Job
	for receipt, c := range q.inflight {
		if limit > 0 && int64(len(stale)) >= limit {
			break
		}
		if c.claimedAt.Before(cutoff) {
			stale = append(stale, c.job)
			delete(q.inflight, receipt)
		}
	}
	q.mu.Unlock()

	var moved int64
	for _, job := range stale {
		if err := q.Enqueue(ctx, job); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Len reports how many jobs wait to be claimed.
func (q *MemoryQueue) Len() int { return len(q.jobs) }
