package util

import (
	"io"

	"github.com/gin-gonic/gin"
)

// ReadUploadedFile reads the multipart field into memory, refusing files
// above maxBytes. It responds and returns false on failure.
func ReadUploadedFile(c *gin.Context, field string, maxBytes int64) ([]byte, string, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		RespondValidationError(c, field, "file is required")
		return nil, "", false
	}
	if header.Size > maxBytes {
		RespondValidationError(c, field, "file is too large")
		return nil, "", false
	}

	src, err := header.Open()
	if err != nil {
		RespondBadRequest(c, "unreadable upload")
		return nil, "", false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		RespondBadRequest(c, "unreadable upload")
		return nil, "", false
	}
	if int64(len(data)) > maxBytes {
		RespondValidationError(c, field, "file is too large")
		return nil, "", false
	}
	return data, header.Filename, true
}
