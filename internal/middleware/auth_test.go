package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
	"github.com/cinesync/backend/internal/util"
)

func TestAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := docstore.NewMemoryStore()
	verifier := auth.NewJWTVerifier([]byte("test-secret"), time.Hour)

	require.NoError(t, store.Set(context.Background(), docstore.Doc(models.CollUsers, "u1"), map[string]any{"nome": "Ana"}))

	router := gin.New()
	router.Use(Authenticate(verifier, auth.StoreProfileLoader(store)))
	router.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(util.UserIDKey))
	})
	router.GET("/profile", RequireProfile(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, call("/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call("/me", "garbage").Code)

	withProfile, _, err := verifier.IssueToken("u1", "ana@example.com")
	require.NoError(t, err)
	w := call("/me", withProfile)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
	assert.Equal(t, http.StatusNoContent, call("/profile", withProfile).Code)

	noProfile, _, err := verifier.IssueToken("u2", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call("/me", noProfile).Code)
	assert.Equal(t, http.StatusForbidden, call("/profile", noProfile).Code)
}
