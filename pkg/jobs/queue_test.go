package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		mu.Lock()
		handled = append(handled, j.Key)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Key: "a", Type: "resync"}))
	require.NoError(t, q.Enqueue(Job{Key: "b", Type: "resync"}))

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	})
}

func TestQueueDeduplicatesPendingKeys(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	processed := 0
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		<-release
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})

	q.Start(context.Background())
	defer q.Stop()

	// First job occupies the worker; the second waits in the buffer. The
	// third carries the same key as the queued one and must be dropped.
	require.NoError(t, q.Enqueue(Job{Key: "busy", Type: "resync"}))
	waitUntil(t, func() bool { return len(q.jobs) == 0 })
	require.NoError(t, q.Enqueue(Job{Key: "feed", Type: "resync"}))
	require.NoError(t, q.Enqueue(Job{Key: "feed", Type: "resync"}))

	close(release)
	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed == 2
	})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, processed, "duplicate pending key must be dropped")
	mu.Unlock()
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	q := NewQueue("test", func(ctx context.Context, j Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Key: "flaky", Type: "resync"}))
	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	})
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, j Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{Key: "a"})
	require.Error(t, err)
}
