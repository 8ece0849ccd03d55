// Package queue provides the durable job queue between the upload endpoint
// and the processing workers.
package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// Queue hands processing jobs from the submission path to workers with
// at-least-once delivery. A dequeued job stays in a pending list until Ack,
// so a crashed worker's job survives a restart via RecoverPending.
type Queue interface {
	Enqueue(ctx context.Context, job *models.ProcessingJob) error

	// Dequeue blocks up to timeout for a job. Returns (nil, nil) when the
	// wait expires with nothing to do.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.ProcessingJob, error)

	// Ack removes a delivered job from the pending list.
	Ack(ctx context.Context, job *models.ProcessingJob) error

	// RecoverPending moves jobs left in the pending list by a previous run
	// back onto the main queue. Returns the number of jobs recovered.
	RecoverPending(ctx context.Context) (int, error)
}
