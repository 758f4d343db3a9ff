package websocket

import (
	"context"
	"time"

	"github.com/cinesync/backend/internal/chat"
	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/subscriptions"
	"github.com/cinesync/backend/internal/views"
)

const mutationTimeout = 10 * time.Second

var (
	errUnknownView = apierrors.NewField("view", "unknown view")
	errMissingID   = apierrors.NewField("id", "view id is required")
	errNoSuchView  = apierrors.New(apierrors.ErrNotFound, "no open view with that key")
	errWrongView   = apierrors.New(apierrors.ErrBadRequest, "view does not support this action")
)

// ReviewWriter is what the review and comment views write through
type ReviewWriter interface {
	views.ReactionWriter
	views.CommentWriter
}

// ConversationReader resolves a conversation for a participant
type ConversationReader interface {
	Conversation(ctx context.Context, conversationID, uid string) (*models.Conversation, error)
}

// Views opens live views for socket clients
type Views struct {
	mgr     *subscriptions.Manager
	reviews ReviewWriter
	chat    ConversationReader
}

// NewViews wires the view handlers into the hub
func NewViews(hub *Hub, mgr *subscriptions.Manager, reviews ReviewWriter, conversations ConversationReader) *Views {
	v := &Views{mgr: mgr, reviews: reviews, chat: conversations}
	hub.RegisterHandler(MessageTypeSubscribe, v.handleSubscribe)
	hub.RegisterHandler(MessageTypeUnsubscribe, v.handleUnsubscribe)
	hub.RegisterHandler(MessageTypeToggleReaction, v.handleToggleReaction)
	hub.RegisterHandler(MessageTypeDeleteComment, v.handleDeleteComment)
	return v
}

// updater returns a callback that pushes view state to the client
func updater[T any](c *Client, key, name string) func(T) {
	return func(data T) {
		_ = c.Send(NewMessage(MessageTypeUpdate, UpdatePayload{Key: key, View: name, Data: data}))
	}
}

func (v *Views) handleSubscribe(c *Client, msg *Message) error {
	var p SubscribePayload
	if err := msg.ParsePayload(&p); err != nil {
		return err
	}
	key := p.Key
	if key == "" {
		key = p.View + ":" + p.ID
	}
	if p.ID == "" && p.View != ViewNotifications {
		return errMissingID
	}

	var opened view
	switch p.View {
	case ViewReview:
		opened = views.OpenReviewCard(v.mgr, v.reviews, p.ID, c.UserID, updater[*models.Review](c, key, p.View))

	case ViewComments:
		thread := views.OpenCommentThread(v.mgr, v.reviews, p.ID, c.UserID, updater[views.ThreadState](c, key, p.View))
		thread.SetPresence(c.presence())
		opened = thread

	case ViewConversation:
		ctx, cancel := context.WithTimeout(c.ctx, mutationTimeout)
		conv, err := v.chat.Conversation(ctx, p.ID, c.UserID)
		cancel()
		if err != nil {
			return err
		}
		opened = views.OpenMessages(v.mgr, conv, c.UserID, updater[[]models.Message](c, key, p.View))

	case ViewNotifications:
		opened = views.OpenUnread(v.mgr, c.UserID, updater[[]models.Notification](c, key, p.View))

	default:
		return errUnknownView
	}

	if err := c.addView(key, opened); err != nil {
		return err
	}
	return c.Send(NewReply(msg, MessageTypeSubscribed, SubscribePayload{Key: key, View: p.View, ID: p.ID}))
}

func (v *Views) handleUnsubscribe(c *Client, msg *Message) error {
	var p SubscribePayload
	if err := msg.ParsePayload(&p); err != nil {
		return err
	}
	key := p.Key
	if key == "" {
		key = p.View + ":" + p.ID
	}
	if !c.removeView(key) {
		return errNoSuchView
	}
	return nil
}

func (v *Views) handleToggleReaction(c *Client, msg *Message) error {
	var p ReactionPayload
	if err := msg.ParsePayload(&p); err != nil {
		return err
	}
	open, ok := c.view(p.Key)
	if !ok {
		return errNoSuchView
	}
	card, ok := open.(*views.ReviewCard)
	if !ok {
		return errWrongView
	}
	ctx, cancel := context.WithTimeout(c.ctx, mutationTimeout)
	defer cancel()
	return card.ToggleReaction(ctx, p.Emoji)
}

func (v *Views) handleDeleteComment(c *Client, msg *Message) error {
	var p DeleteCommentPayload
	if err := msg.ParsePayload(&p); err != nil {
		return err
	}
	open, ok := c.view(p.Key)
	if !ok {
		return errNoSuchView
	}
	thread, ok := open.(*views.CommentThread)
	if !ok {
		return errWrongView
	}
	ctx, cancel := context.WithTimeout(c.ctx, mutationTimeout)
	defer cancel()
	return thread.Delete(ctx, p.CommentID)
}

// applyPresence forwards focus and connectivity to the open comment threads
func applyPresence(c *Client, focused, online bool) {
	for _, open := range c.setPresence(focused, online) {
		if thread, ok := open.(*views.CommentThread); ok {
			thread.SetPresence(focused, online)
		}
	}
}

var _ ConversationReader = (*chat.Service)(nil)
