package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/feed"
	"github.com/cinesync/backend/internal/util"
)

func feedMode(c *gin.Context) (string, bool) {
	mode := c.DefaultQuery("mode", feed.ModeEveryone)
	if mode != feed.ModeEveryone && mode != feed.ModeFollowed {
		util.RespondValidationError(c, "mode", "must be everyone or followed")
		return "", false
	}
	return mode, true
}

// GetFeed returns the next page of the merged feed. Pass the sessionId of
// the previous page to continue; omit it to start from the top.
// GET /api/v1/feed?mode=everyone|followed&session=
func (h *Handlers) GetFeed(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	mode, ok := feedMode(c)
	if !ok {
		return
	}

	page, err := h.Feed.Load(c.Request.Context(), userID, c.Query("session"), mode)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ResetFeed rewinds a session, as on pull to refresh
// POST /api/v1/feed/reset?mode=&session=
func (h *Handlers) ResetFeed(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	mode, ok := feedMode(c)
	if !ok {
		return
	}

	sess, err := h.Feed.Reset(c.Request.Context(), userID, c.Query("session"), mode)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sess.ID, "mode": sess.Mode})
}
