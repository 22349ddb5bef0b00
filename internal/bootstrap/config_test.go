package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "cb:", cfg.KeyPrefix)
	assert.Equal(t, 2*time.Second, cfg.PresenceGrace)
	assert.Equal(t, 30*time.Minute, cfg.RoomSweepInterval)
	assert.Equal(t, time.Hour, cfg.RoomInactivityTimeout)
	assert.Equal(t, 100, cfg.StrokeLogCapacity)
	assert.Equal(t, 50, cfg.SnapshotEvents)
	assert.False(t, cfg.EraseOwnStrokesOnly)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("PRESENCE_GRACE", "500ms")
	t.Setenv("WHITEBOARD_ERASE_OWN_ONLY", "true")
	t.Setenv("LOG_LEVEL", "verbose")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, ":memory:", cfg.DB.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.PresenceGrace)
	assert.True(t, cfg.EraseOwnStrokesOnly)
	assert.Equal(t, "info", cfg.LogLevel, "无效级别回落到 info")
}

func TestLoadConfig_Errors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "Missing redis", env: map[string]string{"REDIS_ADDR": "", "JWT_SECRET": "s"}},
		{name: "Missing secret", env: map[string]string{"REDIS_ADDR": "x", "JWT_SECRET": ""}},
		{name: "Bad duration", env: map[string]string{"REDIS_ADDR": "x", "JWT_SECRET": "s", "PRESENCE_GRACE": "soon"}},
		{name: "Bad int", env: map[string]string{"REDIS_ADDR": "x", "JWT_SECRET": "s", "RATE_LIMIT_MAX": "many"}},
		{name: "Snapshot exceeds capacity", env: map[string]string{"REDIS_ADDR": "x", "JWT_SECRET": "s", "STROKE_LOG_CAPACITY": "10", "SNAPSHOT_EVENTS": "20"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
