package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/queue"
)

func newQueueRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEnqueueDequeue(t *testing.T) {
	client := newQueueRedis(t)

	enq := queue.Enqueuer{R: client, Prefix: "test"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := queue.EnqueueRefresh(ctx, enq, "MAEU1234567", provider.KindContainer, 0)
	require.NoError(t, err)

	processed := make(chan queue.RefreshPayload, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "test",
		Kind:              queue.KindRefresh,
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler: func(ctx context.Context, task queue.Task) error {
			payload, err := queue.DecodeRefresh(task)
			if err != nil {
				return err
			}
			processed <- payload
			cancel()
			return nil
		},
	}

	go func() {
		_ = worker.Run(ctx)
	}()

	select {
	case payload := <-processed:
		require.Equal(t, "MAEU1234567", payload.TrackingNumber)
		require.Equal(t, string(provider.KindContainer), payload.Kind)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for payload")
	}
}

func TestEnqueueRefreshDeduplicates(t *testing.T) {
	client := newQueueRedis(t)

	enq := queue.Enqueuer{R: client, Prefix: "dedup", DedupTTL: time.Minute}
	ctx := context.Background()

	require.NoError(t, queue.EnqueueRefresh(ctx, enq, "maeu1234567", provider.KindContainer, 0))
	require.NoError(t, queue.EnqueueRefresh(ctx, enq, "MAEU1234567", provider.KindContainer, 0))

	depth, err := client.ZCard(ctx, "dedup:queue:"+queue.KindRefresh).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth, "same number must collapse into one task")
}

func TestWorkerRetries(t *testing.T) {
	client := newQueueRedis(t)

	enq := queue.Enqueuer{R: client, Prefix: "retry"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.EnqueueRefresh(ctx, enq, "MAEU1234567", provider.KindContainer, 0))

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "retry",
		Kind:              queue.KindRefresh,
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		Handler: func(ctx context.Context, task queue.Task) error {
			if attempts.Add(1) == 1 {
				return errors.New("fail first")
			}
			cancel()
			return nil
		},
	}

	go func() { _ = worker.Run(ctx) }()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not retry in time")
	}

	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestDecodeRefreshRejectsEmptyNumber(t *testing.T) {
	_, err := queue.DecodeRefresh(queue.Task{Kind: queue.KindRefresh, Payload: []byte(`{}`)})
	require.Error(t, err)

	_, err = queue.DecodeRefresh(queue.Task{Kind: queue.KindRefresh, Payload: []byte(`not json`)})
	require.Error(t, err)
}
