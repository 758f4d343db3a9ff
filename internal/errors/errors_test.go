package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAlreadyVoted = New(ErrConflict, "already voted")

func TestFromError_DomainError(t *testing.T) {
	wrapped := fmt.Errorf("vote battle 1_vs_2: %w", errAlreadyVoted)

	apiErr := FromError(wrapped)
	require.NotNil(t, apiErr)
	assert.Equal(t, ErrConflict, apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "already voted", apiErr.Message)
	assert.True(t, stderrors.Is(wrapped, errAlreadyVoted))
}

func TestFromError_FieldValidation(t *testing.T) {
	apiErr := FromError(NewField("nota", "rating must be between 0.5 and 10"))
	assert.Equal(t, ErrValidation, apiErr.Code)
	assert.Equal(t, "nota", apiErr.Field)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}

func TestFromError_UnknownIsInternal(t *testing.T) {
	apiErr := FromError(stderrors.New("connection reset"))
	assert.Equal(t, ErrInternalError, apiErr.Code)
	assert.NotContains(t, apiErr.Message, "connection reset")
	assert.Nil(t, FromError(nil))
}

func TestFromError_PassesAPIErrorThrough(t *testing.T) {
	orig := NotFound("review")
	assert.Same(t, orig, FromError(fmt.Errorf("wrap: %w", orig)))
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	orig := BadRequest("bad cursor")
	withDetails := orig.WithDetails("base64 decode failed")
	assert.Empty(t, orig.Details)
	assert.Equal(t, "base64 decode failed", withDetails.Details)
}

func TestIs(t *testing.T) {
	assert.True(t, Is(fmt.Errorf("x: %w", errAlreadyVoted), ErrConflict))
	assert.False(t, Is(nil, ErrConflict))
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("UNKNOWN").StatusCode())
}
