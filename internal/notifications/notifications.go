// Package notifications writes notification documents and fans them out as
// device pushes
package notifications

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/push"
)

const (
	defaultListLimit = 50
	// Firestore rejects batches above 500 writes
	maxBatchWrites = 500
)

var ErrNotRecipient = apierrors.New(apierrors.ErrForbidden, "notification belongs to another user")

// Payload carries the optional targets of a notification
type Payload struct {
	ReviewID       string
	ConversationID string
	Text           string
}

// Notifier is what other services need to emit notifications
type Notifier interface {
	Notify(ctx context.Context, recipientID, senderID, notificationType string, payload Payload) (*models.Notification, error)
}

// Service manages notifications/{id} documents
type Service struct {
	store  docstore.Store
	sender push.Sender
	now    func() time.Time
}

// NewService creates a notification service. sender may be nil to disable pushes.
func NewService(store docstore.Store, sender push.Sender) *Service {
	return &Service{store: store, sender: sender, now: time.Now}
}

// Notify writes a notification for recipientID and pushes it to the
// recipient's device when a token is registered. Self notifications are
// skipped and return nil.
func (s *Service) Notify(ctx context.Context, recipientID, senderID, notificationType string, payload Payload) (*models.Notification, error) {
	if recipientID == "" || recipientID == senderID {
		return nil, nil
	}

	recipient, err := s.loadUser(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	n := &models.Notification{
		ID:             docstore.NewID(),
		RecipientID:    recipientID,
		SenderID:       senderID,
		Type:           notificationType,
		ReviewID:       payload.ReviewID,
		ConversationID: payload.ConversationID,
		Text:           payload.Text,
		Timestamp:      s.now().UTC(),
	}
	if sender, err := s.loadUser(ctx, senderID); err == nil {
		n.SenderInfo = sender.Snapshot()
	} else {
		logger.Log.Warn("Notification sender lookup failed", logger.WithUserID(senderID), zap.Error(err))
		n.SenderInfo = models.UserSnapshot{UID: senderID}
	}

	if err := s.store.Create(ctx, docstore.Doc(models.CollNotifications, n.ID), n); err != nil {
		return nil, err
	}

	pushed := s.push(ctx, recipient, n)
	metrics.RecordNotification(notificationType, pushed)
	return n, nil
}

func (s *Service) push(ctx context.Context, recipient *models.User, n *models.Notification) bool {
	if s.sender == nil || recipient.FCMToken == nil || *recipient.FCMToken == "" {
		return false
	}
	msg := push.Message{
		Title: Title(n),
		Body:  n.Text,
		Data: map[string]string{
			"link": Link(n),
			"type": n.Type,
			"id":   n.ID,
		},
	}
	err := s.sender.Send(ctx, *recipient.FCMToken, msg)
	if err == nil {
		return true
	}
	logger.Log.Warn("Push delivery failed", logger.WithUserID(recipient.UID), logger.WithSource("push"), zap.Error(err))
	if errors.Is(err, push.ErrInvalidToken) {
		if err := s.store.Update(ctx, docstore.Doc(models.CollUsers, recipient.UID),
			docstore.Update{Path: "fcmToken", Value: nil}); err != nil {
			logger.Log.Warn("Failed to clear stale push token", logger.WithUserID(recipient.UID), zap.Error(err))
		}
	}
	return false
}

// Link is the client route a notification opens
func Link(n *models.Notification) string {
	switch {
	case n.ReviewID != "":
		return "/review/" + n.ReviewID
	case n.ConversationID != "":
		return "/chat/" + n.ConversationID
	default:
		return "/profile/" + n.SenderID
	}
}

// Title is the push title for a notification
func Title(n *models.Notification) string {
	name := n.SenderInfo.Nome
	if name == "" {
		name = n.SenderInfo.Username
	}
	if name == "" {
		name = "Someone"
	}
	switch n.Type {
	case models.NotificationFollow:
		return name + " started following you"
	case models.NotificationLike:
		return name + " reacted to your review"
	case models.NotificationComment:
		return name + " commented on your review"
	case models.NotificationInviteAccepted:
		return name + " accepted your movie invite"
	default:
		return name + " sent you a notification"
	}
}

// List returns the newest notifications of uid
func (s *Service) List(ctx context.Context, uid string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultListLimit
	}
	page, err := s.store.Query(ctx, docstore.From(models.CollNotifications).
		Where("recipientId", docstore.OpEqual, uid).
		OrderBy("timestamp", docstore.Desc).
		Limit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(page.Docs))
	for _, snap := range page.Docs {
		var n models.Notification
		if err := snap.DataTo(&n); err != nil {
			logger.Log.Warn("Skipping undecodable notification", zap.String("id", snap.Ref.ID), zap.Error(err))
			continue
		}
		n.ID = snap.Ref.ID
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flags one notification as read. Only the recipient may do so.
func (s *Service) MarkRead(ctx context.Context, uid, id string) error {
	ref := docstore.Doc(models.CollNotifications, id)
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if recipient, _ := snap.Data["recipientId"].(string); recipient != uid {
			return ErrNotRecipient
		}
		return tx.Update(ref, docstore.Update{Path: "read", Value: true})
	})
}

// MarkAllRead flags every unread notification of uid and returns how many changed
func (s *Service) MarkAllRead(ctx context.Context, uid string) (int, error) {
	page, err := s.store.Query(ctx, UnreadQuery(uid))
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(page.Docs); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(page.Docs))
		batch := s.store.Batch()
		for _, snap := range page.Docs[start:end] {
			batch.Update(snap.Ref, docstore.Update{Path: "read", Value: true})
		}
		if err := batch.Commit(ctx); err != nil {
			return start, err
		}
	}
	return len(page.Docs), nil
}

// UnreadCount returns how many notifications uid has not read
func (s *Service) UnreadCount(ctx context.Context, uid string) (int64, error) {
	return s.store.Count(ctx, UnreadQuery(uid))
}

// UnreadQuery is the live query behind the unread badge
func UnreadQuery(uid string) docstore.Query {
	return docstore.From(models.CollNotifications).
		Where("recipientId", docstore.OpEqual, uid).
		Where("read", docstore.OpEqual, false)
}

func (s *Service) loadUser(ctx context.Context, uid string) (*models.User, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollUsers, uid))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	if u.UID == "" {
		u.UID = uid
	}
	return &u, nil
}
