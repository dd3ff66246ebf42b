package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "http://localhost:8000", cfg.ServerURL)
	assert.Empty(t, cfg.APIToken)
	assert.False(t, cfg.IncludeRead)

	assert.Equal(t, DefaultDataDir(), cfg.StateDir)
	assert.Equal(t, 5000, cfg.MaxQueueSize)
	assert.Equal(t, "720h", cfg.MaxActionAge)
	assert.Equal(t, "64MiB", cfg.MaxStoreSize)

	assert.Equal(t, "5m", cfg.PollInterval)
	assert.Equal(t, "10s", cfg.MinSyncInterval)
	assert.Equal(t, "30s", cfg.HealthInterval)
	assert.False(t, cfg.Websocket)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)

	assert.Equal(t, "30s", cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "lighthouse-go/0.1", cfg.UserAgent)
}

func TestDefaultConfig_Validates(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestConfig_StatePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/var/lib/lighthouse"

	assert.Equal(t, filepath.Join("/var/lib/lighthouse", "lighthouse.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("/var/lib/lighthouse", "device.json"), cfg.DevicePath())
	assert.Equal(t, filepath.Join("/var/lib/lighthouse", "lighthouse.pid"), cfg.PIDPath())
}

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 720*time.Hour, cfg.MaxActionAgeDuration())
	assert.Equal(t, 5*time.Minute, cfg.PollIntervalDuration())
	assert.Equal(t, 10*time.Second, cfg.MinSyncIntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.HealthIntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeoutDuration())
	assert.Equal(t, int64(64<<20), cfg.MaxStoreBytes())
}

func TestConfig_ZeroMeansDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActionAge = "0"
	cfg.MaxStoreSize = "0"

	assert.Zero(t, cfg.MaxActionAgeDuration())
	assert.Zero(t, cfg.MaxStoreBytes())
}
