package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/cache"
	"github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/util"
)

// RedisRateLimit is a fixed window limiter shared by every instance. When
// rc is nil it uses the in-process limiter instead.
func RedisRateLimit(rc *cache.RedisClient, name string, config RateLimitConfig) gin.HandlerFunc {
	if rc == nil {
		return RateLimit(config)
	}
	if config.KeyFunc == nil {
		config.KeyFunc = defaultKey
	}

	return func(c *gin.Context) {
		window := time.Now().Unix() / int64(config.Window.Seconds())
		key := fmt.Sprintf("rate_limit:%s:%s:%d", name, config.KeyFunc(c), window)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		start := time.Now()
		pipe := rc.Client().TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, config.Window)
		_, err := pipe.Exec(ctx)
		metrics.RecordRedisOperation("rate_limit", "rate_limit:*", time.Since(start), err)
		if err != nil {
			// an unavailable limiter must not take the API down with it
			logger.Log.Warn("Rate limit check failed, allowing request", zap.Error(err))
			c.Next()
			return
		}

		count := incr.Val()
		remaining := int64(config.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(config.Limit) {
			c.Header("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
			metrics.RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			util.RespondWithAPIError(c, errors.RateLimited("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
