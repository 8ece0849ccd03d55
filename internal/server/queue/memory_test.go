package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/classhub/internal/server/models"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeueAck(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	job := &models.ProcessingJob{UploadID: "u1", ClassID: "c1"}
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "u1", got.UploadID)
	require.Equal(t, 1, q.PendingCount())

	require.NoError(t, q.Ack(ctx, got))
	require.Equal(t, 0, q.PendingCount())
}

func TestMemoryQueue_DequeueTimeout(t *testing.T) {
	q := NewMemoryQueue()

	got, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryQueue_DequeueContextCanceled(t *testing.T) {
	q := NewMemoryQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_RecoverPending(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &models.ProcessingJob{UploadID: "u1"}))
	require.NoError(t, q.Enqueue(ctx, &models.ProcessingJob{UploadID: "u2"}))

	_, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, q.PendingCount())

	n, err := q.RecoverPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 0, q.PendingCount())

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		seen[job.UploadID] = true
	}
	require.True(t, seen["u1"])
	require.True(t, seen["u2"])
}

func TestMemoryQueue_AckUnknownJobIsNoop(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Ack(context.Background(), &models.ProcessingJob{UploadID: "ghost"}))
}
