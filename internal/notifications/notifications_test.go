package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/push"
)

type NotificationsSuite struct {
	suite.Suite
	ctx    context.Context
	store  *docstore.MemoryStore
	sender *push.Recorder
	svc    *Service
}

func TestNotificationsSuite(t *testing.T) {
	suite.Run(t, new(NotificationsSuite))
}

func (s *NotificationsSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewMemoryStore()
	s.sender = push.NewRecorder()
	s.svc = NewService(s.store, s.sender)

	token := "device-1"
	alice := models.NewUser("alice", "Alice", "Doe", "alice")
	alice.FCMToken = &token
	s.Require().NoError(s.store.Create(s.ctx, docstore.Doc(models.CollUsers, "alice"), alice))
	s.Require().NoError(s.store.Create(s.ctx, docstore.Doc(models.CollUsers, "bob"), models.NewUser("bob", "Bob", "", "bob")))
}

func (s *NotificationsSuite) TestNotifyWritesDocumentAndPushes() {
	n, err := s.svc.Notify(s.ctx, "alice", "bob", models.NotificationLike, Payload{ReviewID: "r1"})
	s.Require().NoError(err)
	s.Require().NotNil(n)

	snap, err := s.store.Get(s.ctx, docstore.Doc(models.CollNotifications, n.ID))
	s.Require().NoError(err)
	var stored models.Notification
	s.Require().NoError(snap.DataTo(&stored))
	s.Equal("alice", stored.RecipientID)
	s.Equal("Bob", stored.SenderInfo.Nome)
	s.False(stored.Read)

	sent := s.sender.Sent()
	s.Require().Len(sent, 1)
	s.Equal("device-1", sent[0].Token)
	s.Equal("/review/r1", sent[0].Message.Data["link"])
	s.Equal("Bob reacted to your review", sent[0].Message.Title)
}

func (s *NotificationsSuite) TestSelfNotificationSkipped() {
	n, err := s.svc.Notify(s.ctx, "alice", "alice", models.NotificationLike, Payload{ReviewID: "r1"})
	s.NoError(err)
	s.Nil(n)
	count, err := s.store.Count(s.ctx, docstore.From(models.CollNotifications))
	s.NoError(err)
	s.Zero(count)
}

func (s *NotificationsSuite) TestNoTokenNoPush() {
	_, err := s.svc.Notify(s.ctx, "bob", "alice", models.NotificationFollow, Payload{})
	s.NoError(err)
	s.Empty(s.sender.Sent())
}

func (s *NotificationsSuite) TestStaleTokenIsCleared() {
	s.sender.Fail = push.ErrInvalidToken
	_, err := s.svc.Notify(s.ctx, "alice", "bob", models.NotificationFollow, Payload{})
	s.Require().NoError(err)

	snap, err := s.store.Get(s.ctx, docstore.Doc(models.CollUsers, "alice"))
	s.Require().NoError(err)
	var u models.User
	s.Require().NoError(snap.DataTo(&u))
	s.Nil(u.FCMToken)
}

func (s *NotificationsSuite) TestReadState() {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.svc.now = func() time.Time { return now.Add(time.Duration(i) * time.Minute) }
		_, err := s.svc.Notify(s.ctx, "alice", "bob", models.NotificationComment, Payload{ReviewID: "r1"})
		s.Require().NoError(err)
	}

	list, err := s.svc.List(s.ctx, "alice", 0)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.True(list[0].Timestamp.After(list[2].Timestamp))

	unread, err := s.svc.UnreadCount(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(3), unread)

	s.ErrorIs(s.svc.MarkRead(s.ctx, "bob", list[0].ID), ErrNotRecipient)
	s.Require().NoError(s.svc.MarkRead(s.ctx, "alice", list[0].ID))
	unread, _ = s.svc.UnreadCount(s.ctx, "alice")
	s.Equal(int64(2), unread)

	changed, err := s.svc.MarkAllRead(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(2, changed)
	unread, _ = s.svc.UnreadCount(s.ctx, "alice")
	s.Zero(unread)
}

func (s *NotificationsSuite) TestLinks() {
	s.Equal("/chat/a_b", Link(&models.Notification{ConversationID: "a_b"}))
	s.Equal("/profile/bob", Link(&models.Notification{SenderID: "bob"}))
}
