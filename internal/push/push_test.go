package push

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Send(context.Background(), "tok", Message{Title: "hi", Data: map[string]string{"link": "/x"}}))

	sent := r.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "tok", sent[0].Token)
	assert.Equal(t, "/x", sent[0].Message.Data["link"])

	r.Fail = errors.New("down")
	assert.Error(t, r.Send(context.Background(), "tok", Message{}))
	assert.Len(t, r.Sent(), 1)
}
