package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/util"
)

// GetConversations lists the caller's conversations, most recent first
// GET /api/v1/conversations
func (h *Handlers) GetConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	convs, err := h.Chat.Conversations(c.Request.Context(), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

// OpenConversation returns the one to one conversation with another user,
// creating it on first use
// POST /api/v1/conversations
func (h *Handlers) OpenConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	conv, err := h.Chat.OpenConversation(c.Request.Context(), userID, req.UserID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// DeleteConversation hides a conversation for the caller until the next message
// DELETE /api/v1/conversations/:id
func (h *Handlers) DeleteConversation(c *gin.Context) {
	h.conversationAction(c, h.Chat.DeleteConversation)
}

// ClearHistory hides every message sent so far, for the caller only
// POST /api/v1/conversations/:id/clear
func (h *Handlers) ClearHistory(c *gin.Context) {
	h.conversationAction(c, h.Chat.ClearHistory)
}

// MarkConversationRead resets the caller's unread counter
// POST /api/v1/conversations/:id/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	h.conversationAction(c, h.Chat.MarkRead)
}

func (h *Handlers) conversationAction(c *gin.Context, action func(ctx context.Context, conversationID, uid string) error) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := action(c.Request.Context(), c.Param("id"), userID); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMessages returns the visible history, oldest first
// GET /api/v1/conversations/:id/messages
func (h *Handlers) GetMessages(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	msgs, err := h.Chat.Messages(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// SendMessage sends a text message, or a movie invite when movie is set
// POST /api/v1/conversations/:id/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Text  string               `json:"text"`
		Movie *models.MoviePayload `json:"movie"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var (
		msg *models.Message
		err error
	)
	if req.Movie != nil {
		msg, err = h.Chat.SendMovieInvite(c.Request.Context(), c.Param("id"), userID, *req.Movie)
	} else {
		msg, err = h.Chat.SendMessage(c.Request.Context(), c.Param("id"), userID, req.Text)
	}
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// EditMessage rewrites the caller's own text message
// PATCH /api/v1/conversations/:id/messages/:messageId
func (h *Handlers) EditMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		util.RespondValidationError(c, "text", "message cannot be empty")
		return
	}
	if err := h.Chat.EditMessage(c.Request.Context(), c.Param("id"), c.Param("messageId"), userID, req.Text); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessage soft deletes the caller's own message
// DELETE /api/v1/conversations/:id/messages/:messageId
func (h *Handlers) DeleteMessage(c *gin.Context) {
	h.messageAction(c, h.Chat.DeleteMessage)
}

// AcceptInvite accepts a movie invite sent by the other participant
// POST /api/v1/conversations/:id/messages/:messageId/accept
func (h *Handlers) AcceptInvite(c *gin.Context) {
	h.messageAction(c, h.Chat.AcceptInvite)
}

func (h *Handlers) messageAction(c *gin.Context, action func(ctx context.Context, conversationID, messageID, uid string) error) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := action(c.Request.Context(), c.Param("id"), c.Param("messageId"), userID); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
