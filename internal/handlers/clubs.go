package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/util"
)

// GetClubs lists clubs, newest first
// GET /api/v1/clubs
func (h *Handlers) GetClubs(c *gin.Context) {
	groups, err := h.Clubs.Clubs(c.Request.Context(), util.QueryLimit(c, 30, 100))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clubs": groups, "count": len(groups)})
}

// GetMyClubs lists the clubs the caller belongs to
// GET /api/v1/clubs/mine
func (h *Handlers) GetMyClubs(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	groups, err := h.Clubs.MemberOf(c.Request.Context(), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clubs": groups, "count": len(groups)})
}

// CreateClub creates a club administered by the caller. Photo is a URL from
// POST /uploads/club.
// POST /api/v1/clubs
func (h *Handlers) CreateClub(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Photo       string `json:"photo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	group, err := h.Clubs.CreateClub(c.Request.Context(), userID, req.Name, req.Description, req.Photo)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// GetClub returns one club
// GET /api/v1/clubs/:id
func (h *Handlers) GetClub(c *gin.Context) {
	group, err := h.Clubs.Club(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// JoinClub adds the caller to a club
// POST /api/v1/clubs/:id/members
func (h *Handlers) JoinClub(c *gin.Context) {
	h.clubAction(c, h.Clubs.Join)
}

// LeaveClub removes the caller from a club
// DELETE /api/v1/clubs/:id/members
func (h *Handlers) LeaveClub(c *gin.Context) {
	h.clubAction(c, h.Clubs.Leave)
}

func (h *Handlers) clubAction(c *gin.Context, action func(ctx context.Context, groupID, uid string) error) {
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

// GetClubPosts lists a club's posts, newest first
// GET /api/v1/clubs/:id/posts
func (h *Handlers) GetClubPosts(c *gin.Context) {
	posts, err := h.Clubs.Posts(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

// CreateClubPost publishes a post. Members only.
// POST /api/v1/clubs/:id/posts
func (h *Handlers) CreateClubPost(c *gin.Context) {
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

	post, err := h.Clubs.CreatePost(c.Request.Context(), c.Param("id"), userID, req.Text)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// DeleteClubPost removes a post. The author and the club admin may delete.
// DELETE /api/v1/clubs/:id/posts/:postId
func (h *Handlers) DeleteClubPost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Clubs.DeletePost(c.Request.Context(), c.Param("id"), c.Param("postId"), userID); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LikeClubPost toggles the caller's like
// POST /api/v1/clubs/:id/posts/:postId/like
func (h *Handlers) LikeClubPost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	liked, err := h.Clubs.ToggleLikePost(c.Request.Context(), c.Param("id"), c.Param("postId"), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

// GetClubPostComments lists comments under a post
// GET /api/v1/clubs/:id/posts/:postId/comments
func (h *Handlers) GetClubPostComments(c *gin.Context) {
	comments, err := h.Clubs.PostComments(c.Request.Context(), c.Param("id"), c.Param("postId"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "count": len(comments)})
}

// CreateClubPostComment comments on a post. Members only.
// POST /api/v1/clubs/:id/posts/:postId/comments
func (h *Handlers) CreateClubPostComment(c *gin.Context) {
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

	comment, err := h.Clubs.AddPostComment(c.Request.Context(), c.Param("id"), c.Param("postId"), userID, req.Text)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DeleteClubPostComment removes a comment under a post
// DELETE /api/v1/clubs/:id/posts/:postId/comments/:commentId
func (h *Handlers) DeleteClubPostComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	err := h.Clubs.DeletePostComment(c.Request.Context(), c.Param("id"), c.Param("postId"), c.Param("commentId"), userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
