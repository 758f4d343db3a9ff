package util

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// QueryLimit reads ?limit= clamped to [1, max]
func QueryLimit(c *gin.Context, def, max int) int {
	n := ParseInt(c.Query("limit"), def)
	if n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// ParseInt64Param parses a path parameter as int64. It responds with 400
// and returns false when the value is not a number.
func ParseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		RespondValidationError(c, name, "must be a positive integer")
		return 0, false
	}
	return v, true
}
