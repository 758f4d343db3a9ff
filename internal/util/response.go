package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// RespondWithAPIError sends a structured API error response
func RespondWithAPIError(c *gin.Context, apiErr *errors.APIError) {
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("API error",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.Int("status", apiErr.Status),
			logger.WithPath(c.FullPath()),
		)
	} else if apiErr.Status >= http.StatusBadRequest {
		logger.Log.Debug("API error",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.String("field", apiErr.Field),
		)
	}
	if apiErr.Code == errors.ErrValidation {
		metrics.RecordValidationFailure(apiErr.Field, apiErr.Message)
	}
	metrics.RecordError(string(apiErr.Code), c.FullPath())

	c.AbortWithStatusJSON(apiErr.Status, ErrorResponse{
		Code:    string(apiErr.Code),
		Message: apiErr.Message,
		Field:   apiErr.Field,
		Details: apiErr.Details,
	})
}

// RespondError maps any service error to its API response. Errors without
// a code are logged and answered with a generic 500.
func RespondError(c *gin.Context, err error) {
	apiErr := errors.FromError(err)
	if apiErr.Code == errors.ErrInternalError {
		logger.Log.Error("Unhandled error", logger.WithPath(c.FullPath()), zap.Error(err))
	}
	RespondWithAPIError(c, apiErr)
}

// RespondBadRequest sends a 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithAPIError(c, errors.BadRequest(message))
}

// RespondValidationError sends a 422 Unprocessable Entity response
func RespondValidationError(c *gin.Context, field, message string) {
	RespondWithAPIError(c, errors.ValidationError(field, message))
}
