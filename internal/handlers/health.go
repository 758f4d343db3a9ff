package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/docstore"
	"github.com/cinesync/backend/internal/models"
)

// Health reports liveness of the store and, when configured, Redis
// GET /health
func (h *Handlers) Health(rc *cache.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := gin.H{}
		status := http.StatusOK

		if _, err := h.Store.Count(ctx, docstore.From(models.CollBattles).Limit(1)); err != nil {
			checks["store"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
		if rc != nil {
			if err := rc.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				checks["redis"] = "ok"
			}
		}
		if h.triggers != nil {
			checks["trigger_queue_pending"] = h.triggers.Pending()
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":    state,
			"checks":    checks,
			"timestamp": time.Now().UTC(),
			"service":   "cinesync-backend",
		})
	}
}
