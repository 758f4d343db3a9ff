package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/util"
)

// GetNotifications returns the newest notifications with the unread count
// GET /api/v1/notifications?limit=
func (h *Handlers) GetNotifications(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	notifs, err := h.Notifications.List(ctx, userID, util.QueryLimit(c, 50, 200))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	unread, err := h.Notifications.UnreadCount(ctx, userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifs,
		"unread":        unread,
		"count":         len(notifs),
	})
}

// GetUnreadCount returns just the unread count for badge display
// GET /api/v1/notifications/unread
func (h *Handlers) GetUnreadCount(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	unread, err := h.Notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread})
}

// MarkNotificationRead marks one notification as read
// POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllNotificationsRead marks every unread notification as read
// POST /api/v1/notifications/read
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
