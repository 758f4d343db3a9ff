package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cinesync/backend/internal/metrics"
)

func TestMetricsMiddlewareUsesRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.Initialize()
	m.HTTPRequestsTotal.Reset()

	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/reviews/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	for _, id := range []string{"a", "b", "missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reviews/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/reviews/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/reviews/:id", "404")))
}
