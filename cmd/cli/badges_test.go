package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/backend/internal/models"
)

func withOutput(t *testing.T, format string) {
	prev := output
	output = format
	t.Cleanup(func() { output = prev })
}

func TestPrintLevel(t *testing.T) {
	withOutput(t, "text")
	var buf bytes.Buffer
	require.NoError(t, printLevel(&buf, 200))
	assert.Equal(t, "Level 2 (200 XP), 50% of the way from 100 to 300\n", buf.String())
}

func TestPrintLevelJSON(t *testing.T) {
	withOutput(t, "json")
	var buf bytes.Buffer
	require.NoError(t, printLevel(&buf, 200))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 2, got["level"])
	assert.EqualValues(t, 300, got["next"])
}

func TestPrintShelf(t *testing.T) {
	withOutput(t, "text")
	u := models.NewUser("u1", "Ana", "Silva", "ana")
	u.XP = 30
	u.Badges = []string{"critic_bronze"}
	u.Stats[models.StatReviews] = 1

	var buf bytes.Buffer
	require.NoError(t, printShelf(&buf, u))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "@ana  level 1  30 XP\n"))
	assert.Contains(t, out, "Crítico Iniciante")
	assert.Contains(t, out, "earned")
	assert.Contains(t, out, "locked")
}
