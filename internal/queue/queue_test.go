package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStrictPriority(t *testing.T) {
	q := New(0)
	require.NoError(t, q.TryEnqueue("n1", Normal))
	require.NoError(t, q.TryEnqueue("n2", Normal))
	require.NoError(t, q.TryEnqueue("h1", High))

	item, ok := q.BlockingDequeue()
	require.True(t, ok)
	require.Equal(t, "h1", item)

	item, ok = q.BlockingDequeue()
	require.True(t, ok)
	require.Equal(t, "n1", item)

	item, ok = q.BlockingDequeue()
	require.True(t, ok)
	require.Equal(t, "n2", item)
}

func TestFIFOWithinBand(t *testing.T) {
	q := New(0)
	require.NoError(t, q.TryEnqueue("a", Normal))
	require.NoError(t, q.TryEnqueue("b", Normal))

	item, _ := q.BlockingDequeue()
	require.Equal(t, "a", item)
	item, _ = q.BlockingDequeue()
	require.Equal(t, "b", item)
}

func TestAdmissionQueueFull(t *testing.T) {
	q := New(2)
	require.NoError(t, q.TryEnqueue(1, Normal))
	require.NoError(t, q.TryEnqueue(2, Normal))

	err := q.TryEnqueue(3, Normal)
	require.Error(t, err)
	var full *ErrQueueFull
	require.ErrorAs(t, err, &full)
	require.GreaterOrEqual(t, full.RetryAfterMS, int64(1))
}

func TestBlockingDequeueWakesOnEnqueue(t *testing.T) {
	q := New(0)
	defer q.Close()

	done := make(chan any, 1)
	go func() {
		item, ok := q.BlockingDequeue()
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.TryEnqueue("late", Low))

	select {
	case v := <-done:
		require.Equal(t, "late", v)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake on enqueue")
	}
}

func TestCloseUnblocksWaiters(t *testing.T) {
	q := New(0)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.BlockingDequeue()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not unblock waiter")
	}
}
