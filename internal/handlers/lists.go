package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/util"
)

type listRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// CreateList creates an empty list
// POST /api/v1/lists
func (h *Handlers) CreateList(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	var title, description string
	if req.Title != nil {
		title = *req.Title
	}
	if req.Description != nil {
		description = *req.Description
	}

	list, err := h.Lists.CreateList(c.Request.Context(), userID, title, description)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

// GetList returns one list
// GET /api/v1/lists/:id
func (h *Handlers) GetList(c *gin.Context) {
	list, err := h.Lists.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetUserLists returns a user's lists
// GET /api/v1/users/:id/lists
func (h *Handlers) GetUserLists(c *gin.Context) {
	lists, err := h.Lists.ByOwner(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lists": lists, "count": len(lists)})
}

// UpdateList renames a list or edits its description
// PATCH /api/v1/lists/:id
func (h *Handlers) UpdateList(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	list, err := h.Lists.UpdateList(c.Request.Context(), userID, c.Param("id"), req.Title, req.Description)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteList removes a list
// DELETE /api/v1/lists/:id
func (h *Handlers) DeleteList(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Lists.DeleteList(c.Request.Context(), userID, c.Param("id")); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddListItem appends a title to a list
// POST /api/v1/lists/:id/items
func (h *Handlers) AddListItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var item models.ListItem
	if err := c.ShouldBindJSON(&item); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	list, err := h.Lists.AddItem(c.Request.Context(), userID, c.Param("id"), item)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// RemoveListItem drops a title from a list
// DELETE /api/v1/lists/:id/items/:mediaType/:mediaId
func (h *Handlers) RemoveListItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	mediaID, ok := util.ParseInt64Param(c, "mediaId")
	if !ok {
		return
	}

	list, err := h.Lists.RemoveItem(c.Request.Context(), userID, c.Param("id"), mediaID, c.Param("mediaType"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
