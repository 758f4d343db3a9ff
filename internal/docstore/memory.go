package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var errStaleRead = errors.New("transaction read is stale")

type memDoc struct {
	ref     DocRef
	data    map[string]any
	created time.Time
	updated time.Time
	version int64
}

// MemoryStore keeps every document in process. Used by tests and single-node
// development servers.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]*memDoc
	version   int64
	now       func() time.Time
	hooks     hookList
	listeners *listenerSet
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]*memDoc),
		now:       time.Now,
		listeners: newListenerSet(),
	}
}

// SetClock overrides the commit clock
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// OnChange registers a hook for committed writes
func (s *MemoryStore) OnChange(hook ChangeHook) {
	s.hooks.add(hook)
}

func (s *MemoryStore) Get(ctx context.Context, ref DocRef) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ref.valid() {
		return nil, ErrInvalidArgument
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[ref.Path()]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", ref.Path(), ErrNotFound)
	}
	return d.snapshot(), nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nq, err := q.normalized()
	if err != nil {
		return nil, err
	}
	return evaluate(s.collection(nq.Collection), nq), nil
}

func (s *MemoryStore) Count(ctx context.Context, q Query) (int64, error) {
	q.LimitN = 0
	q.After = nil
	page, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return int64(len(page.Docs)), nil
}

func (s *MemoryStore) collection(collection string) []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := collection + "/"
	var out []*Snapshot
	for path, d := range s.docs {
		if strings.HasPrefix(path, prefix) && d.ref.Collection == collection {
			out = append(out, d.snapshot())
		}
	}
	return out
}

func (s *MemoryStore) Create(ctx context.Context, ref DocRef, data any) error {
	return s.Batch().Create(ref, data).Commit(ctx)
}

func (s *MemoryStore) Set(ctx context.Context, ref DocRef, data any, opts ...SetOption) error {
	return s.Batch().Set(ref, data, opts...).Commit(ctx)
}

func (s *MemoryStore) Update(ctx context.Context, ref DocRef, updates ...Update) error {
	return s.Batch().Update(ref, updates...).Commit(ctx)
}

func (s *MemoryStore) Delete(ctx context.Context, ref DocRef) error {
	return s.Batch().Delete(ref).Commit(ctx)
}

func (s *MemoryStore) Batch() *WriteBatch {
	return newBatch(func(ctx context.Context, writes []write) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.commit(writes, nil)
	})
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{store: s, reads: make(map[string]int64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if tx.err != nil {
			return tx.err
		}
		err := s.commit(tx.writes, tx.reads)
		if errors.Is(err, errStaleRead) {
			continue
		}
		return err
	}
	return ErrTxConflict
}

// commit applies writes atomically. When reads is non-nil every read version
// must still be current.
func (s *MemoryStore) commit(writes []write, reads map[string]int64) error {
	s.mu.Lock()

	for path, version := range reads {
		current := int64(0)
		if d, ok := s.docs[path]; ok {
			current = d.version
		}
		if current != version {
			s.mu.Unlock()
			return errStaleRead
		}
	}

	now := s.now()
	staged, err := stageWrites(writes, func(ref DocRef) (docState, error) {
		d, ok := s.docs[ref.Path()]
		if !ok {
			return docState{}, nil
		}
		return docState{data: d.data, exists: true, created: d.created}, nil
	}, now)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	events := make([]ChangeEvent, 0, len(staged))
	for _, st := range staged {
		path := st.ref.Path()
		if st.deleted {
			delete(s.docs, path)
		} else {
			s.version++
			created := st.before.created
			if !st.before.exists {
				created = now
			}
			s.docs[path] = &memDoc{ref: st.ref, data: st.after, created: created, updated: now, version: s.version}
		}
		if e, ok := st.event(now); ok {
			events = append(events, e)
		}
	}
	s.mu.Unlock()

	s.hooks.emit(events)
	s.listeners.notify(events)
	return nil
}

func (s *MemoryStore) SubscribeDoc(ctx context.Context, ref DocRef, fn func(*Snapshot, error)) Subscription {
	path := ref.Path()
	return s.listeners.add(ctx, func(r DocRef) bool { return r.Path() == path }, func() {
		snap, err := s.Get(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			fn(nil, nil)
			return
		}
		fn(snap, err)
	})
}

func (s *MemoryStore) SubscribeQuery(ctx context.Context, q Query, fn func([]*Snapshot, error)) Subscription {
	return s.listeners.add(ctx, func(r DocRef) bool { return r.Collection == q.Collection }, func() {
		page, err := s.Query(ctx, q)
		if err != nil {
			fn(nil, err)
			return
		}
		fn(page.Docs, nil)
	})
}

func (s *MemoryStore) Close() error {
	s.listeners.closeAll()
	return nil
}

func (d *memDoc) snapshot() *Snapshot {
	return &Snapshot{Ref: d.ref, Data: copyMap(d.data), CreateTime: d.created, UpdateTime: d.updated}
}

type memTx struct {
	store  *MemoryStore
	reads  map[string]int64
	writes []write
	err    error
}

func (t *memTx) Get(ref DocRef) (*Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, fmt.Errorf("%w: transaction reads must precede writes", ErrInvalidArgument)
	}
	if !ref.valid() {
		return nil, ErrInvalidArgument
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	d, ok := t.store.docs[ref.Path()]
	if !ok {
		t.reads[ref.Path()] = 0
		return nil, fmt.Errorf("get %s: %w", ref.Path(), ErrNotFound)
	}
	t.reads[ref.Path()] = d.version
	return d.snapshot(), nil
}

func (t *memTx) Create(ref DocRef, data any) error {
	return t.add(newDataWrite(writeCreate, ref, data, false))
}

func (t *memTx) Set(ref DocRef, data any, opts ...SetOption) error {
	return t.add(newDataWrite(writeSet, ref, data, hasMerge(opts)))
}

func (t *memTx) Update(ref DocRef, updates ...Update) error {
	return t.add(newUpdateWrite(ref, updates))
}

func (t *memTx) Delete(ref DocRef) error {
	if !ref.valid() {
		return t.add(write{}, ErrInvalidArgument)
	}
	return t.add(write{kind: writeDelete, ref: ref}, nil)
}

func (t *memTx) add(w write, err error) error {
	if err != nil {
		if t.err == nil {
			t.err = err
		}
		return err
	}
	t.writes = append(t.writes, w)
	return nil
}
