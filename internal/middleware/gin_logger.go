package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/util"
)

// GinLoggerMiddleware logs HTTP requests with structured fields
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			logger.WithPath(path),
			zap.String("query", query),
			logger.WithIP(c.ClientIP()),
			logger.WithStatus(status),
			zap.Int("response_size", c.Writer.Size()),
			logger.WithDuration(time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if requestID := c.GetString(RequestIDKey); requestID != "" {
			fields = append(fields, logger.WithRequestID(requestID))
		}
		if uid := c.GetString(util.UserIDKey); uid != "" {
			fields = append(fields, logger.WithUserID(uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Log.Error("HTTP request", fields...)
		case status >= 400:
			logger.Log.Warn("HTTP request", fields...)
		default:
			logger.Log.Info("HTTP request", fields...)
		}
	}
}
