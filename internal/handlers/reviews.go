package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/reviews"
	"github.com/cinesync/backend/internal/util"
)

// CreateReview publishes a rated review of a title
// POST /api/v1/reviews
func (h *Handlers) CreateReview(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req reviews.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	review, err := h.Reviews.CreateReview(c.Request.Context(), userID, req)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// GetReview returns one review
// GET /api/v1/reviews/:id
func (h *Handlers) GetReview(c *gin.Context) {
	review, err := h.Reviews.Review(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// DeleteReview removes the caller's own review
// DELETE /api/v1/reviews/:id
func (h *Handlers) DeleteReview(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Reviews.DeleteReview(c.Request.Context(), userID, c.Param("id")); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetUserReviews lists a user's reviews, newest first
// GET /api/v1/users/:id/reviews
func (h *Handlers) GetUserReviews(c *gin.Context) {
	list, err := h.Reviews.ByAuthor(c.Request.Context(), c.Param("id"), util.QueryLimit(c, 20, 50))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list, "count": len(list)})
}

// GetTitleReviews lists reviews of one catalog title
// GET /api/v1/titles/:id/reviews
func (h *Handlers) GetTitleReviews(c *gin.Context) {
	movieID, ok := util.ParseInt64Param(c, "id")
	if !ok {
		return
	}
	list, err := h.Reviews.ForTitle(c.Request.Context(), movieID, util.QueryLimit(c, 20, 50))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list, "count": len(list)})
}

// ToggleReaction applies a like or dislike. Sending the current reaction
// again clears it.
// POST /api/v1/reviews/:id/reactions
func (h *Handlers) ToggleReaction(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	review, err := h.Reviews.ToggleReaction(c.Request.Context(), c.Param("id"), userID, req.Emoji)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// GetComments lists a review's comments, oldest first
// GET /api/v1/reviews/:id/comments
func (h *Handlers) GetComments(c *gin.Context) {
	comments, err := h.Reviews.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "count": len(comments)})
}

// CreateComment adds a comment to a review
// POST /api/v1/reviews/:id/comments
func (h *Handlers) CreateComment(c *gin.Context) {
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

	comment, err := h.Reviews.AddComment(c.Request.Context(), c.Param("id"), userID, req.Text)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DeleteComment removes a comment. The comment author and the review owner
// may delete.
// DELETE /api/v1/reviews/:id/comments/:commentId
func (h *Handlers) DeleteComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Reviews.DeleteComment(c.Request.Context(), c.Param("id"), c.Param("commentId"), userID); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReconcileComments recounts a review's comments and fixes commentCount
// POST /api/v1/reviews/:id/comments/reconcile
func (h *Handlers) ReconcileComments(c *gin.Context) {
	count, changed, err := h.Reviews.ReconcileCommentCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commentCount": count, "changed": changed})
}
