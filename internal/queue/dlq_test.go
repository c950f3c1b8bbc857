package queue_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/queue"
)

func TestMoveToDLQAfterMaxAttempts(t *testing.T) {
	client := newQueueRedis(t)

	store := newMemoryStore()
	enq := queue.Enqueuer{R: client, Prefix: "dlq", MaxAttempts: 2}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := zerolog.New(io.Discard)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "dlq",
		Kind:              queue.KindRefresh,
		Concurrency:       1,
		VisibilityTimeout: 120 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		Store:             store,
		Logger:            &log,
		Handler: func(context.Context, queue.Task) error {
			return errors.New("provider sweep failed")
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.NoError(t, queue.EnqueueRefresh(context.Background(), enq, "MAEU1234567", provider.KindContainer, 0))

	require.Eventually(t, func() bool {
		count, err := store.Count(context.Background(), queue.KindRefresh)
		return err == nil && count == 1
	}, 2*time.Second, 20*time.Millisecond)

	snapshot := store.snapshot()
	require.Len(t, snapshot, 1)
	for _, entry := range snapshot {
		require.Equal(t, queue.KindRefresh, entry.Kind)
		require.Equal(t, "MAEU1234567:container", entry.IdempotencyKey)
		require.Equal(t, 2, entry.Attempts)
		require.NotEmpty(t, entry.Payload)
		require.NotNil(t, entry.LastError)
		require.Contains(t, *entry.LastError, "provider sweep failed")
	}

	cancel()
	<-done
}
