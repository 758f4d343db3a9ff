package docstore

import (
	"context"
	"sync"
	"time"
)

// ChangeKind is the type of a committed document write
type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// ChangeEvent describes one committed document write. Before is nil for
// creates and After is nil for deletes.
type ChangeEvent struct {
	Ref    DocRef
	Kind   ChangeKind
	Before map[string]any
	After  map[string]any
	Time   time.Time
}

// ChangeHook receives committed writes. Hooks run synchronously after commit
// and must not block.
type ChangeHook func(ChangeEvent)

// ChangeFeed is implemented by backends that publish their own writes
type ChangeFeed interface {
	OnChange(hook ChangeHook)
}

type hookList struct {
	mu    sync.RWMutex
	hooks []ChangeHook
}

func (h *hookList) add(hook ChangeHook) {
	h.mu.Lock()
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()
}

func (h *hookList) emit(events []ChangeEvent) {
	h.mu.RLock()
	hooks := h.hooks
	h.mu.RUnlock()
	for _, e := range events {
		for _, hook := range hooks {
			hook(e)
		}
	}
}

func changeKind(existed, deleted bool) ChangeKind {
	switch {
	case deleted:
		return Deleted
	case existed:
		return Updated
	default:
		return Created
	}
}

// listenerSet drives in-process subscriptions. Each listener owns a goroutine
// that re-reads its target whenever a matching write commits. Signals
// coalesce, so a slow listener sees the latest state rather than every step.
type listenerSet struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
}

type listener struct {
	match  func(DocRef) bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	set    *listenerSet
}

func newListenerSet() *listenerSet {
	return &listenerSet{listeners: make(map[*listener]struct{})}
}

func (s *listenerSet) add(ctx context.Context, match func(DocRef) bool, refresh func()) Subscription {
	l := &listener{
		match:  match,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		set:    s,
	}
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer l.Stop()
		refresh()
		for {
			select {
			case <-l.done:
				return
			case <-ctx.Done():
				return
			case <-l.signal:
				select {
				case <-l.done:
					return
				default:
				}
				refresh()
			}
		}
	}()
	return l
}

func (s *listenerSet) notify(events []ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for l := range s.listeners {
		for _, e := range events {
			if l.match(e.Ref) {
				select {
				case l.signal <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

func (s *listenerSet) closeAll() {
	s.mu.Lock()
	all := make([]*listener, 0, len(s.listeners))
	for l := range s.listeners {
		all = append(all, l)
	}
	s.mu.Unlock()
	for _, l := range all {
		l.Stop()
	}
}

// Stop ends the subscription. Callbacks already running may still complete.
func (l *listener) Stop() {
	l.once.Do(func() {
		close(l.done)
		l.set.mu.Lock()
		delete(l.set.listeners, l)
		l.set.mu.Unlock()
	})
}
