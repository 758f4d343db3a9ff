package views

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/chat"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
	"github.com/cinesync/backend/internal/subscriptions"
)

// ListView is a read-only live query result
type ListView[T any] struct {
	decode   func(*docstore.Snapshot) (T, error)
	onChange func([]T)

	mu     sync.Mutex
	items  []T
	closed bool
	handle subscriptions.Handle
}

// OpenList subscribes to q and decodes every result through decode.
// Documents that fail to decode are skipped.
func OpenList[T any](mgr *subscriptions.Manager, q docstore.Query, decode func(*docstore.Snapshot) (T, error), onChange func([]T)) *ListView[T] {
	v := &ListView[T]{decode: decode, onChange: onChange}
	h := mgr.SubscribeQuery(q, v.onSnapshots)
	v.mu.Lock()
	v.handle = h
	closed := v.closed
	v.mu.Unlock()
	if closed {
		h.Stop()
	}
	return v
}

func (v *ListView[T]) onSnapshots(docs []*docstore.Snapshot, err error) {
	if err != nil {
		logger.Log.Warn("List listener failed", zap.Error(err))
		return
	}
	items := make([]T, 0, len(docs))
	for _, snap := range docs {
		item, err := v.decode(snap)
		if err != nil {
			logger.Log.Debug("Skipping undecodable document", zap.String("path", snap.Ref.Path()), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = items
	if !v.closed && v.onChange != nil {
		v.onChange(append([]T(nil), items...))
	}
}

// Items returns the latest result
func (v *ListView[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]T(nil), v.items...)
}

// Close stops the listener
func (v *ListView[T]) Close() {
	v.mu.Lock()
	v.closed = true
	h := v.handle
	v.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// OpenMessages is the live message list of a conversation, starting after
// the viewer's clearedAt mark
func OpenMessages(mgr *subscriptions.Manager, conv *models.Conversation, viewerID string, onChange func([]models.Message)) *ListView[models.Message] {
	q := chat.MessagesQuery(conv.ID, conv.HistoryClearedAt[viewerID])
	return OpenList(mgr, q, func(snap *docstore.Snapshot) (models.Message, error) {
		var m models.Message
		err := snap.DataTo(&m)
		m.ID = snap.Ref.ID
		return m, err
	}, onChange)
}

// OpenUnread is the live list of a user's unread notifications
func OpenUnread(mgr *subscriptions.Manager, uid string, onChange func([]models.Notification)) *ListView[models.Notification] {
	return OpenList(mgr, notifications.UnreadQuery(uid), func(snap *docstore.Snapshot) (models.Notification, error) {
		var n models.Notification
		err := snap.DataTo(&n)
		n.ID = snap.Ref.ID
		return n, err
	}, onChange)
}
