package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"course-catalog/internal/catalog"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan catalog.TaskItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	item := catalog.TaskItem{TaskID: "task-1", Kind: catalog.TaskEnrichCourse}
	require.NoError(t, q.Enqueue(context.Background(), item))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "task-1", got.TaskID)
		require.Equal(t, catalog.TaskEnrichCourse, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancellationErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), catalog.TaskItem{TaskID: "primed"}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, full.Enqueue(ctx, catalog.TaskItem{}), context.Canceled)
}

func TestQueueEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), catalog.TaskItem{TaskID: "first"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, catalog.TaskItem{TaskID: "second"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseUnblocksDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe close")
	}
}

func TestQueueEnqueueAfterCloseReturnsErrClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()

	err := q.Enqueue(context.Background(), catalog.TaskItem{TaskID: "late"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseDrainsBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), catalog.TaskItem{TaskID: "buffered"}))
	q.Close()

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "buffered", item.TaskID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
