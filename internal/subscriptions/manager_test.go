package subscriptions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/docstore"
)

// countingStore counts store level listeners
type countingStore struct {
	*docstore.MemoryStore
	started atomic.Int32
	stopped atomic.Int32
}

type countedSub struct {
	docstore.Subscription
	stopped *atomic.Int32
}

func (c countedSub) Stop() {
	c.stopped.Add(1)
	c.Subscription.Stop()
}

func (s *countingStore) SubscribeDoc(ctx context.Context, ref docstore.DocRef, fn func(*docstore.Snapshot, error)) docstore.Subscription {
	s.started.Add(1)
	return countedSub{Subscription: s.MemoryStore.SubscribeDoc(ctx, ref, fn), stopped: &s.stopped}
}

func (s *countingStore) SubscribeQuery(ctx context.Context, q docstore.Query, fn func([]*docstore.Snapshot, error)) docstore.Subscription {
	s.started.Add(1)
	return countedSub{Subscription: s.MemoryStore.SubscribeQuery(ctx, q, fn), stopped: &s.stopped}
}

func TestIdenticalSubscriptionsShareOneListener(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: docstore.NewMemoryStore()}
	ref := docstore.Doc("reviews", "r1")
	require.NoError(t, store.Create(ctx, ref, map[string]any{"nota": 8}))

	m := NewManager(store)
	defer m.Close()

	var first, second atomic.Value
	h1 := m.SubscribeDoc(ref, func(s *docstore.Snapshot, err error) {
		if s != nil {
			first.Store(s.Data["nota"])
		}
	})
	require.Eventually(t, func() bool { return first.Load() != nil }, time.Second, 5*time.Millisecond)

	h2 := m.SubscribeDoc(ref, func(s *docstore.Snapshot, err error) {
		if s != nil {
			second.Store(s.Data["nota"])
		}
	})
	// the latest value is replayed to a late subscriber
	assert.Equal(t, int64(8), second.Load())
	assert.Equal(t, int32(1), store.started.Load())
	assert.Equal(t, map[string]int{"doc:reviews/r1": 2}, m.Refs())

	require.NoError(t, store.Update(ctx, ref, docstore.Update{Path: "nota", Value: 9}))
	require.Eventually(t, func() bool {
		return first.Load() == int64(9) && second.Load() == int64(9)
	}, time.Second, 5*time.Millisecond)

	h1.Stop()
	h1.Stop()
	assert.Equal(t, 1, m.Active())
	assert.Zero(t, store.stopped.Load())

	h2.Stop()
	assert.Zero(t, m.Active())
	assert.Equal(t, int32(1), store.stopped.Load())
}

func TestDifferentQueryShapesAreSeparate(t *testing.T) {
	store := &countingStore{MemoryStore: docstore.NewMemoryStore()}
	m := NewManager(store)
	defer m.Close()

	q1 := docstore.From("reviews").OrderBy("timestamp", docstore.Desc)
	q2 := q1.Limit(5)
	h1 := m.SubscribeQuery(q1, func([]*docstore.Snapshot, error) {})
	h2 := m.SubscribeQuery(q2, func([]*docstore.Snapshot, error) {})
	h3 := m.SubscribeQuery(q1, func([]*docstore.Snapshot, error) {})

	assert.Equal(t, 2, m.Active())
	assert.Equal(t, int32(2), store.started.Load())

	h1.Stop()
	h2.Stop()
	h3.Stop()
	assert.Zero(t, m.Active())
	assert.Equal(t, int32(2), store.stopped.Load())
}

func TestCloseStopsEverything(t *testing.T) {
	store := &countingStore{MemoryStore: docstore.NewMemoryStore()}
	m := NewManager(store)
	m.SubscribeDoc(docstore.Doc("users", "a"), func(*docstore.Snapshot, error) {})
	m.SubscribeQuery(docstore.From("users"), func([]*docstore.Snapshot, error) {})

	m.Close()
	assert.Zero(t, m.Active())
	assert.Equal(t, int32(2), store.stopped.Load())
}
