package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("loud"))
}

func TestErrorWithFields(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()
	core, logs := observer.New(zapcore.DebugLevel)
	Log = zap.New(core)

	ErrorWithFields("upload failed", errors.New("bucket gone"))
	ErrorWithFields("no cause", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "bucket gone", entries[0].ContextMap()["error"])
	assert.Empty(t, entries[1].Context)
}

func TestInitializeWritesFile(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()
	path := filepath.Join(t.TempDir(), "cinesync.log")

	require.NoError(t, Initialize("info", path))
	Log.Info("hello", WithUserID("ana"), WithSource("test"))
	_ = Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_id":"ana"`)
}
