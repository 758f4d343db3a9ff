// Package chat implements one to one conversations, messages and movie invites
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/docstore"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/notifications"
)

const (
	maxMessageLength = 2000
	deletedText      = "Mensagem apagada"
	inviteText       = "🎬 Convite para assistir"
)

var (
	ErrNotParticipant = apierrors.New(apierrors.ErrForbidden, "not a participant of this conversation")
	ErrNotSender      = apierrors.New(apierrors.ErrForbidden, "only the sender can change this message")
	ErrSelfChat       = apierrors.New(apierrors.ErrBadRequest, "cannot open a conversation with yourself")
	ErrEmptyMessage   = apierrors.NewField("text", "message cannot be empty")
	ErrMessageTooLong = apierrors.NewField("text", "message is too long")
	ErrNotInvite      = apierrors.New(apierrors.ErrBadRequest, "message is not a movie invite")
	ErrMessageDeleted = apierrors.New(apierrors.ErrConflict, "message was deleted")
	ErrInvalidMovie   = apierrors.NewField("movie", "a catalog title is required")
)

// ConversationID is the sorted pair of user ids joined with "_"
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "_" + ids[1]
}

// MessagesCollection is the message subcollection of a conversation
func MessagesCollection(conversationID string) string {
	return docstore.Doc(models.CollConversations, conversationID).Sub("messages")
}

// Service manages conversations/{id} and their messages
type Service struct {
	store    docstore.Store
	notifier notifications.Notifier
	now      func() time.Time
}

// NewService creates a chat service. notifier may be nil.
func NewService(store docstore.Store, notifier notifications.Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// OpenConversation creates the conversation between a and b if needed,
// refreshes both profile snapshots and restores it for a if a had deleted it
func (s *Service) OpenConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	if a == b {
		return nil, ErrSelfChat
	}
	id := ConversationID(a, b)
	convRef := docstore.Doc(models.CollConversations, id)

	var out models.Conversation
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		infos := make(map[string]models.UserSnapshot, 2)
		for _, uid := range []string{a, b} {
			snap, err := tx.Get(docstore.Doc(models.CollUsers, uid))
			if err != nil {
				return err
			}
			var u models.User
			if err := snap.DataTo(&u); err != nil {
				return err
			}
			u.UID = uid
			infos[uid] = u.Snapshot()
		}

		existing, err := tx.Get(convRef)
		if errors.Is(err, docstore.ErrNotFound) {
			participants := []string{a, b}
			sort.Strings(participants)
			out = models.Conversation{
				ID:                   id,
				Participants:         participants,
				ParticipantInfo:      infos,
				LastMessageTimestamp: s.now().UTC(),
				DeletedBy:            map[string]bool{},
				HistoryClearedAt:     map[string]time.Time{},
				Unread:               map[string]int64{a: 0, b: 0},
			}
			return tx.Create(convRef, out)
		}
		if err != nil {
			return err
		}
		if err := existing.DataTo(&out); err != nil {
			return err
		}
		out.ID = id
		out.ParticipantInfo = infos
		if out.DeletedBy == nil {
			out.DeletedBy = map[string]bool{}
		}
		out.DeletedBy[a] = false
		return tx.Update(convRef,
			docstore.Update{Path: "participantInfo", Value: infos},
			docstore.Update{Path: "deletedBy." + a, Value: false},
		)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversation loads a conversation the viewer takes part in
func (s *Service) Conversation(ctx context.Context, conversationID, uid string) (*models.Conversation, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(models.CollConversations, conversationID))
	if err != nil {
		return nil, err
	}
	var c models.Conversation
	if err := snap.DataTo(&c); err != nil {
		return nil, err
	}
	c.ID = snap.Ref.ID
	if !c.HasParticipant(uid) {
		return nil, ErrNotParticipant
	}
	return &c, nil
}

// ConversationsQuery is the live query behind the inbox of uid
func ConversationsQuery(uid string) docstore.Query {
	return docstore.From(models.CollConversations).
		Where("participants", docstore.OpArrayContains, uid).
		OrderBy("lastMessageTimestamp", docstore.Desc)
}

// Conversations lists the inbox of uid, most recent first, without the ones uid deleted
func (s *Service) Conversations(ctx context.Context, uid string) ([]*models.Conversation, error) {
	page, err := s.store.Query(ctx, ConversationsQuery(uid))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Conversation, 0, len(page.Docs))
	for _, snap := range page.Docs {
		var c models.Conversation
		if err := snap.DataTo(&c); err != nil {
			logger.Log.Warn("Skipping undecodable conversation", zap.String("conversation", snap.Ref.ID), zap.Error(err))
			continue
		}
		c.ID = snap.Ref.ID
		if c.DeletedBy[uid] {
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

// SendMessage posts a text message
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, ErrMessageTooLong
	}
	return s.post(ctx, conversationID, senderID, &models.Message{Type: models.MessageText, Text: text})
}

// SendMovieInvite posts an invite to watch a catalog title together
func (s *Service) SendMovieInvite(ctx context.Context, conversationID, senderID string, movie models.MoviePayload) (*models.Message, error) {
	if movie.ID <= 0 {
		return nil, ErrInvalidMovie
	}
	return s.post(ctx, conversationID, senderID, &models.Message{
		Type:       models.MessageMovieInvite,
		Text:       inviteText + ": " + movie.Title,
		Movie:      &movie,
		AcceptedBy: []string{},
	})
}

// post writes the message and the conversation summary in one batch. The
// recipient's unread counter goes up and a conversation the recipient had
// deleted shows up again.
func (s *Service) post(ctx context.Context, conversationID, senderID string, msg *models.Message) (*models.Message, error) {
	conv, err := s.Conversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	msg.ID = docstore.NewID()
	msg.SenderID = senderID
	msg.Timestamp = s.now().UTC()

	updates := []docstore.Update{
		{Path: "lastMessage", Value: msg.Text},
		{Path: "lastMessageTimestamp", Value: msg.Timestamp},
		{Path: "deletedBy." + senderID, Value: false},
	}
	for _, p := range conv.Participants {
		if p == senderID {
			continue
		}
		updates = append(updates,
			docstore.Update{Path: "unread." + p, Value: docstore.Increment(1)},
			docstore.Update{Path: "deletedBy." + p, Value: false},
		)
	}
	err = s.store.Batch().
		Create(docstore.Doc(MessagesCollection(conversationID), msg.ID), msg).
		Update(docstore.Doc(models.CollConversations, conversationID), updates...).
		Commit(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordMessage(msg.Type)
	return msg, nil
}

// MessagesQuery is the live message query of a conversation for one viewer
func MessagesQuery(conversationID string, clearedAt time.Time) docstore.Query {
	q := docstore.From(MessagesCollection(conversationID)).OrderBy("timestamp", docstore.Asc)
	if !clearedAt.IsZero() {
		q = q.Where("timestamp", docstore.OpGreater, clearedAt)
	}
	return q
}

// Messages returns the thread as uid sees it: oldest first, without the
// messages sent before uid cleared the history
func (s *Service) Messages(ctx context.Context, conversationID, uid string) ([]models.Message, error) {
	conv, err := s.Conversation(ctx, conversationID, uid)
	if err != nil {
		return nil, err
	}
	page, err := s.store.Query(ctx, MessagesQuery(conversationID, conv.HistoryClearedAt[uid]))
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(page.Docs))
	for _, snap := range page.Docs {
		var m models.Message
		if err := snap.DataTo(&m); err != nil {
			continue
		}
		m.ID = snap.Ref.ID
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) message(ctx context.Context, conversationID, messageID string) (*models.Message, docstore.DocRef, error) {
	ref := docstore.Doc(MessagesCollection(conversationID), messageID)
	snap, err := s.store.Get(ctx, ref)
	if err != nil {
		return nil, ref, err
	}
	var m models.Message
	if err := snap.DataTo(&m); err != nil {
		return nil, ref, err
	}
	m.ID = messageID
	return &m, ref, nil
}

// AcceptInvite records uid in the invite's acceptedBy set and tells the sender
func (s *Service) AcceptInvite(ctx context.Context, conversationID, messageID, uid string) error {
	if _, err := s.Conversation(ctx, conversationID, uid); err != nil {
		return err
	}
	m, ref, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if m.Type != models.MessageMovieInvite {
		return ErrNotInvite
	}
	if m.Deleted {
		return ErrMessageDeleted
	}
	if m.SenderID == uid {
		return ErrNotParticipant
	}
	for _, accepted := range m.AcceptedBy {
		if accepted == uid {
			return nil
		}
	}
	if err := s.store.Update(ctx, ref, docstore.Update{Path: "acceptedBy", Value: docstore.ArrayUnion(uid)}); err != nil {
		return err
	}
	if s.notifier != nil {
		title := ""
		if m.Movie != nil {
			title = m.Movie.Title
		}
		if _, err := s.notifier.Notify(ctx, m.SenderID, uid, models.NotificationInviteAccepted,
			notifications.Payload{ConversationID: conversationID, Text: title}); err != nil {
			logger.Log.Warn("Failed to emit invite notification", logger.WithUserID(m.SenderID), zap.Error(err))
		}
	}
	return nil
}

// EditMessage replaces the text of a message the viewer sent
func (s *Service) EditMessage(ctx context.Context, conversationID, messageID, uid, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return ErrMessageTooLong
	}
	m, ref, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != uid {
		return ErrNotSender
	}
	if m.Deleted {
		return ErrMessageDeleted
	}
	return s.store.Update(ctx, ref,
		docstore.Update{Path: "text", Value: text},
		docstore.Update{Path: "edited", Value: true},
	)
}

// DeleteMessage soft deletes a message the viewer sent
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, uid string) error {
	m, ref, err := s.message(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != uid {
		return ErrNotSender
	}
	return s.store.Update(ctx, ref,
		docstore.Update{Path: "text", Value: deletedText},
		docstore.Update{Path: "deleted", Value: true},
		docstore.Update{Path: "movie", Value: docstore.DeleteField},
	)
}

// ClearHistory hides every current message from uid only
func (s *Service) ClearHistory(ctx context.Context, conversationID, uid string) error {
	if _, err := s.Conversation(ctx, conversationID, uid); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.Doc(models.CollConversations, conversationID),
		docstore.Update{Path: "historyClearedAt." + uid, Value: s.now().UTC()},
		docstore.Update{Path: "unread." + uid, Value: 0},
	)
}

// DeleteConversation removes the conversation from uid's inbox
func (s *Service) DeleteConversation(ctx context.Context, conversationID, uid string) error {
	if _, err := s.Conversation(ctx, conversationID, uid); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.Doc(models.CollConversations, conversationID),
		docstore.Update{Path: "deletedBy." + uid, Value: true},
	)
}

// MarkRead resets uid's unread counter
func (s *Service) MarkRead(ctx context.Context, conversationID, uid string) error {
	if _, err := s.Conversation(ctx, conversationID, uid); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.Doc(models.CollConversations, conversationID),
		docstore.Update{Path: "unread." + uid, Value: 0},
	)
}
