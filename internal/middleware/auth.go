package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/util"
)

// Authenticate verifies the bearer token and puts a signed in session on the
// request. Requests without a valid token are rejected with 401.
func Authenticate(verifier auth.Verifier, load auth.ProfileLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			util.RespondWithAPIError(c, errors.Unauthorized("missing bearer token"))
			return
		}

		session := auth.NewSession(verifier, load)
		if err := session.SignIn(c.Request.Context(), token); err != nil {
			if session.State() == auth.SignedOut {
				logger.Log.Debug("Token rejected", logger.WithIP(c.ClientIP()), zap.Error(err))
				util.RespondWithAPIError(c, errors.Unauthorized("invalid or expired token"))
				return
			}
			// verified but the profile read failed
			util.RespondError(c, err)
			return
		}

		util.SetSession(c, session)
		c.Next()
	}
}

// RequireProfile rejects signed in users that have not created a profile yet
func RequireProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := util.GetSessionFromContext(c)
		if !ok {
			util.RespondWithAPIError(c, errors.Unauthorized("user not authenticated"))
			return
		}
		if session.State() != auth.ProfileLoaded {
			util.RespondWithAPIError(c, errors.Forbidden("profile not created"))
			return
		}
		c.Next()
	}
}
