package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/util"
)

// GetBattle returns a battle with the caller's vote, if any
// GET /api/v1/battles/:id
func (h *Handlers) GetBattle(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	battle, err := h.Battles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	vote, err := h.Battles.VoteOf(c.Request.Context(), battle.ID, userID)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"battle": battle, "vote": vote})
}

// VoteBattle casts the caller's single vote
// POST /api/v1/battles/:id/vote
func (h *Handlers) VoteBattle(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Side string `json:"side" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	battle, err := h.Battles.Vote(c.Request.Context(), c.Param("id"), userID, req.Side)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, battle)
}
