package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/social"
	"github.com/cinesync/backend/internal/storage"
	"github.com/cinesync/backend/internal/util"
)

// CreateProfile writes the profile of a freshly signed up user
// POST /api/v1/profile
func (h *Handlers) CreateProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Nome      string `json:"nome" binding:"required,max=60"`
		Sobrenome string `json:"sobrenome" binding:"max=60"`
		Username  string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.Social.CreateProfile(c.Request.Context(), userID, req.Nome, req.Sobrenome, req.Username)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	if session, ok := util.GetSessionFromContext(c); ok {
		if err := session.ReloadProfile(c.Request.Context()); err != nil {
			logger.Log.Warn("Failed to reload profile after creation", logger.WithUserID(userID), zap.Error(err))
		}
	}
	c.JSON(http.StatusCreated, user)
}

// GetMyProfile returns the signed in user's profile screen
// GET /api/v1/profile
func (h *Handlers) GetMyProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	h.respondProfile(c, userID)
}

// UpdateMyProfile applies a partial profile update
// PATCH /api/v1/profile
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req social.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.Social.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CheckUsername reports whether a username can be taken by the caller
// GET /api/v1/profile/username?username=
func (h *Handlers) CheckUsername(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	username := c.Query("username")
	available, err := h.Social.IsUsernameAvailable(c.Request.Context(), userID, username)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": strings.ToLower(strings.TrimSpace(username)), "available": available})
}

// GetUserProfile returns another user's profile screen
// GET /api/v1/users/:id
func (h *Handlers) GetUserProfile(c *gin.Context) {
	h.respondProfile(c, c.Param("id"))
}

func (h *Handlers) respondProfile(c *gin.Context, uid string) {
	view, err := h.Social.Profile(c.Request.Context(), uid)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetUserBadges returns level progress and the badge shelf
// GET /api/v1/users/:id/badges
func (h *Handlers) GetUserBadges(c *gin.Context) {
	view, err := h.Social.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":        view.User.UID,
		"xp":         view.User.XP,
		"level":      view.Level,
		"categories": view.Badges,
	})
}

// SearchUsers matches a prefix against usernames and names
// GET /api/v1/users/search?q=
func (h *Handlers) SearchUsers(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		util.RespondValidationError(c, "q", "search query is required")
		return
	}
	users, err := h.Social.SearchUsers(c.Request.Context(), q)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// ToggleFollow follows or unfollows a user
// POST /api/v1/users/:id/follow
func (h *Handlers) ToggleFollow(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	following, err := h.Social.ToggleFollow(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

// GetFollowers lists who follows a user
// GET /api/v1/users/:id/followers
func (h *Handlers) GetFollowers(c *gin.Context) {
	users, err := h.Social.Followers(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// GetFollowing lists who a user follows
// GET /api/v1/users/:id/following
func (h *Handlers) GetFollowing(c *gin.Context) {
	users, err := h.Social.Following(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// RegisterPushToken stores the device token used for push notifications
// PUT /api/v1/profile/push-token
func (h *Handlers) RegisterPushToken(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if err := h.Social.RegisterPushToken(c.Request.Context(), userID, req.Token); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadAvatar replaces the profile photo
// POST /api/v1/profile/avatar (multipart field "image")
func (h *Handlers) UploadAvatar(c *gin.Context) {
	h.uploadProfileImage(c, storage.KindAvatar)
}

// UploadCover replaces the profile cover image
// POST /api/v1/profile/cover (multipart field "image")
func (h *Handlers) UploadCover(c *gin.Context) {
	h.uploadProfileImage(c, storage.KindCover)
}

func (h *Handlers) uploadProfileImage(c *gin.Context, kind string) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	result, ok := h.upload(c, userID, kind)
	if !ok {
		return
	}

	var update social.ProfileUpdate
	if kind == storage.KindAvatar {
		update.Foto = &result.URL
	} else {
		update.Capa = &result.URL
	}
	user, err := h.Social.UpdateProfile(c.Request.Context(), userID, update)
	if err != nil {
		if delErr := h.uploader.DeleteFile(c.Request.Context(), result.Key); delErr != nil {
			logger.Log.Warn("Failed to delete orphaned upload", zap.String("key", result.Key), zap.Error(delErr))
		}
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": result.URL, "user": user})
}

// UploadClubImage stores a club photo and returns its URL for CreateClub
// POST /api/v1/uploads/club (multipart field "image")
func (h *Handlers) UploadClubImage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	result, ok := h.upload(c, userID, storage.KindClub)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handlers) upload(c *gin.Context, owner, kind string) (*storage.UploadResult, bool) {
	if h.uploader == nil {
		util.RespondError(c, storage.ErrUploadsDisabled)
		return nil, false
	}
	data, filename, ok := util.ReadUploadedFile(c, "image", storage.MaxImageSize)
	if !ok {
		return nil, false
	}
	result, err := h.uploader.UploadImage(c.Request.Context(), data, owner, kind, filename)
	if err != nil {
		util.RespondError(c, err)
		return nil, false
	}
	return result, true
}
