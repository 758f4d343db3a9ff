package util

import (
	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/errors"
)

// Context keys set by the auth middleware
const (
	SessionKey = "session"
	UserIDKey  = "user_id"
)

// SetSession stores the signed in session on the request
func SetSession(c *gin.Context, session *auth.Session) {
	c.Set(SessionKey, session)
	c.Set(UserIDKey, session.UID())
}

// GetSessionFromContext returns the request's session, if any
func GetSessionFromContext(c *gin.Context) (*auth.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*auth.Session)
	return session, ok
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the user is not authenticated, it responds with 401 Unauthorized.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	uid := c.GetString(UserIDKey)
	if uid == "" {
		RespondWithAPIError(c, errors.Unauthorized("user not authenticated"))
		return "", false
	}
	return uid, true
}
