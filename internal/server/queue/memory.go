package queue

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// MemoryQueue is an in-process Queue with the same delivery semantics as the
// Redis implementation. Used in tests and single-node setups.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    chan *models.ProcessingJob
	pending map[string]*models.ProcessingJob
}

// NewMemoryQueue constructs an in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:    make(chan *models.ProcessingJob, 1024),
		pending: make(map[string]*models.ProcessingJob),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.ProcessingJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.ProcessingJob, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		q.mu.Lock()
		q.pending[job.UploadID] = job
		q.mu.Unlock()
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job *models.ProcessingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, job.UploadID)
	return nil
}

func (q *MemoryQueue) RecoverPending(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for id, job := range q.pending {
		q.jobs <- job
		delete(q.pending, id)
		count++
	}
	return count, nil
}

// PendingCount reports the number of delivered but unacked jobs.
func (q *MemoryQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
