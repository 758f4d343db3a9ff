package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/docstore"
)

func event(id string) docstore.ChangeEvent {
	return docstore.ChangeEvent{
		Ref:   docstore.Doc("reviews", id),
		Kind:  docstore.Created,
		After: map[string]any{"uidAutor": "u1"},
	}
}

func TestTriggerQueueDeliversEvents(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	q := NewTriggerQueue(func(ctx context.Context, ev docstore.ChangeEvent) error {
		mu.Lock()
		seen[ev.Ref.ID] = true
		mu.Unlock()
		return nil
	}, Options{Workers: 2, Buffer: 10})
	q.Start()
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(event(id)))
	}
	require.NoError(t, q.WaitIdle(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
}

func TestTriggerQueueRetriesFailures(t *testing.T) {
	var calls atomic.Int32
	q := NewTriggerQueue(func(ctx context.Context, ev docstore.ChangeEvent) error {
		if calls.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	}, Options{Workers: 1, Buffer: 1, MaxAttempts: 3})
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Submit(event("r1")))
	require.NoError(t, q.WaitIdle(5*time.Second))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), q.processed.Load())
}

func TestTriggerQueueGivesUp(t *testing.T) {
	var calls atomic.Int32
	q := NewTriggerQueue(func(ctx context.Context, ev docstore.ChangeEvent) error {
		calls.Add(1)
		return errors.New("permanent")
	}, Options{Workers: 1, Buffer: 1, MaxAttempts: 2})
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Submit(event("r1")))
	require.NoError(t, q.WaitIdle(5*time.Second))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1), q.failed.Load())
}

func TestTriggerQueueFull(t *testing.T) {
	// no workers started, so the buffer never drains
	q := NewTriggerQueue(func(ctx context.Context, ev docstore.ChangeEvent) error { return nil },
		Options{Workers: 1, Buffer: 1})

	require.NoError(t, q.Submit(event("a")))
	assert.ErrorIs(t, q.Submit(event("b")), ErrQueueFull)
}

func TestTriggerQueueStopRejects(t *testing.T) {
	q := NewTriggerQueue(func(ctx context.Context, ev docstore.ChangeEvent) error { return nil },
		Options{Workers: 1, Buffer: 4})
	q.Start()
	q.Stop()
	q.Stop()

	assert.ErrorIs(t, q.Submit(event("a")), ErrQueueStopped)
}

func TestChainJoinsErrors(t *testing.T) {
	var ran []string
	h := Chain(
		func(ctx context.Context, ev docstore.ChangeEvent) error { ran = append(ran, "a"); return errors.New("a failed") },
		func(ctx context.Context, ev docstore.ChangeEvent) error { ran = append(ran, "b"); return nil },
	)
	err := h(context.Background(), event("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestHookFeedsStore(t *testing.T) {
	store := docstore.NewMemoryStore()
	var got atomic.Int32
	q := NewTriggerQueue(func(ctx context.Context, ev docstore.ChangeEvent) error {
		got.Add(1)
		return nil
	}, Options{Workers: 1, Buffer: 8})
	store.OnChange(q.Hook())
	q.Start()
	defer q.Stop()

	require.NoError(t, store.Create(context.Background(), docstore.Doc("lists", "l1"), map[string]any{"title": "x"}))
	require.NoError(t, q.WaitIdle(2*time.Second))
	assert.Equal(t, int32(1), got.Load())
}
