package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cinesync/backend/internal/util"
)

// TracingMiddleware opens a server span per request with otelgin and tags it
// with the viewer and the request id once the handlers have run.
func TracingMiddleware(serviceName string) gin.HandlersChain {
	return gin.HandlersChain{otelgin.Middleware(serviceName), tagSpan}
}

func tagSpan(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	if uid := c.GetString(util.UserIDKey); uid != "" {
		span.SetAttributes(attribute.String("user.id", uid))
	}
	if requestID := c.GetString(RequestIDKey); requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	for _, ginErr := range c.Errors {
		span.RecordError(ginErr.Err)
		span.SetStatus(codes.Error, ginErr.Error())
	}
}
