// Package subscriptions shares live store listeners between consumers.
// Identical subscriptions are keyed by target and query shape and reference
// counted: the first subscriber starts the store listener, later ones attach
// to it and get the latest value replayed, the last one to leave stops it.
package subscriptions

import (
	"context"
	"sync"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/metrics"
)

const (
	kindDoc   = "doc"
	kindQuery = "query"
)

type update struct {
	doc  *docstore.Snapshot
	docs []*docstore.Snapshot
	err  error
}

type entry struct {
	key       string
	kind      string
	sub       docstore.Subscription
	listeners map[int]func(update)
	last      *update
}

// Manager owns the shared listeners. Its zero value is not usable; use NewManager.
type Manager struct {
	store  docstore.Store
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	nextID  int
}

func NewManager(store docstore.Store) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{store: store, ctx: ctx, cancel: cancel, entries: make(map[string]*entry)}
}

// Handle detaches one subscriber
type Handle interface {
	Stop()
}

type handle struct {
	once sync.Once
	stop func()
}

func (h *handle) Stop() {
	h.once.Do(h.stop)
}

// SubscribeDoc calls fn with the document on every change; a missing
// document is delivered as nil
func (m *Manager) SubscribeDoc(ref docstore.DocRef, fn func(*docstore.Snapshot, error)) Handle {
	key := kindDoc + ":" + ref.Path()
	return m.subscribe(key, kindDoc, func(u update) { fn(u.doc, u.err) }, func(ctx context.Context, deliver func(update)) docstore.Subscription {
		return m.store.SubscribeDoc(ctx, ref, func(s *docstore.Snapshot, err error) {
			deliver(update{doc: s, err: err})
		})
	})
}

// SubscribeQuery calls fn with the full result set on every change
func (m *Manager) SubscribeQuery(q docstore.Query, fn func([]*docstore.Snapshot, error)) Handle {
	key := kindQuery + ":" + q.Key()
	return m.subscribe(key, kindQuery, func(u update) { fn(u.docs, u.err) }, func(ctx context.Context, deliver func(update)) docstore.Subscription {
		return m.store.SubscribeQuery(ctx, q, func(docs []*docstore.Snapshot, err error) {
			deliver(update{docs: docs, err: err})
		})
	})
}

func (m *Manager) subscribe(key, kind string, fn func(update), start func(context.Context, func(update)) docstore.Subscription) Handle {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	e, ok := m.entries[key]
	if !ok {
		e = &entry{key: key, kind: kind, listeners: make(map[int]func(update))}
		m.entries[key] = e
	}
	e.listeners[id] = fn
	replay := e.last
	m.mu.Unlock()

	if !ok {
		sub := start(m.ctx, func(u update) { m.deliver(e, u) })
		m.mu.Lock()
		if m.entries[key] == e {
			e.sub = sub
			metrics.AddActiveSubscriptions(kind, 1)
		} else {
			// every subscriber left before the listener was wired
			sub.Stop()
		}
		m.mu.Unlock()
	} else if replay != nil {
		fn(*replay)
	}

	return &handle{stop: func() { m.unsubscribe(e, id) }}
}

func (m *Manager) deliver(e *entry, u update) {
	m.mu.Lock()
	e.last = &u
	fns := make([]func(update), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (m *Manager) unsubscribe(e *entry, id int) {
	m.mu.Lock()
	delete(e.listeners, id)
	if len(e.listeners) > 0 || m.entries[e.key] != e {
		m.mu.Unlock()
		return
	}
	delete(m.entries, e.key)
	sub := e.sub
	m.mu.Unlock()

	if sub != nil {
		sub.Stop()
		metrics.AddActiveSubscriptions(e.kind, -1)
	}
}

// Active returns how many store listeners are running
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Refs returns the subscriber count of each active key
func (m *Manager) Refs() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.entries))
	for k, e := range m.entries {
		out[k] = len(e.listeners)
	}
	return out
}

// Close stops every listener
func (m *Manager) Close() {
	m.mu.Lock()
	running := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.sub != nil {
			running = append(running, e)
		}
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range running {
		e.sub.Stop()
		metrics.AddActiveSubscriptions(e.kind, -1)
	}
	m.cancel()
}
