package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DOCSTORE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.DocstoreBackend)
	assert.Equal(t, 4, cfg.TriggerWorkers)
	assert.Equal(t, 30, cfg.FeedInMaxValues)
	assert.Equal(t, 30*time.Minute, cfg.FeedSessionTTL)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DOCSTORE_BACKEND", "SQL")
	t.Setenv("SQLITE_PATH", "/tmp/cinesync.db")
	t.Setenv("TRIGGER_WORKERS", "8")
	t.Setenv("FEED_SESSION_TTL", "5m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQL, cfg.DocstoreBackend)
	assert.Equal(t, 8, cfg.TriggerWorkers)
	assert.Equal(t, 5*time.Minute, cfg.FeedSessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory with jwt", Config{DocstoreBackend: BackendMemory, JWTSecret: "s", TriggerWorkers: 1, FeedInMaxValues: 30}, ""},
		{"sql without dsn", Config{DocstoreBackend: BackendSQL, JWTSecret: "s", TriggerWorkers: 1, FeedInMaxValues: 30}, "requires DATABASE_URL"},
		{"firestore without project", Config{DocstoreBackend: BackendFirestore, JWTSecret: "s", TriggerWorkers: 1, FeedInMaxValues: 30}, "FIREBASE_PROJECT_ID"},
		{"unknown backend", Config{DocstoreBackend: "mongo", JWTSecret: "s", TriggerWorkers: 1, FeedInMaxValues: 30}, "unknown DOCSTORE_BACKEND"},
		{"no auth", Config{DocstoreBackend: BackendMemory, TriggerWorkers: 1, FeedInMaxValues: 30}, "authentication"},
		{"no workers", Config{DocstoreBackend: BackendMemory, JWTSecret: "s", FeedInMaxValues: 30}, "TRIGGER_WORKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
