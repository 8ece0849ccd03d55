package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/classhub/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	mainKey    = "ingest:jobs"
	pendingKey = "ingest:jobs:pending"
)

// RedisQueue implements Queue over two Redis lists. BLMOVE atomically moves
// a job from the main list to the pending list on dequeue; Ack removes it
// from pending by value.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue constructs a queue over the given Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, mainKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.ProcessingJob, error) {
	data, err := q.client.BLMove(ctx, mainKey, pendingKey, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	job := &models.ProcessingJob{}
	if err := json.Unmarshal([]byte(data), job); err != nil {
		// A payload that does not parse can never be acked by value, so
		// drop it from pending instead of poisoning the list forever.
		_ = q.client.LRem(ctx, pendingKey, 1, data).Err()
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *models.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LRem(ctx, pendingKey, 1, data).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func (q *RedisQueue) RecoverPending(ctx context.Context) (int, error) {
	count := 0
	for {
		err := q.client.LMove(ctx, pendingKey, mainKey, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to recover pending job: %w", err)
		}
		count++
	}
}
