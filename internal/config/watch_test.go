package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	stateDir := t.TempDir()
	path := writeTestConfig(t, `state_dir = "`+stateDir+`"`+"\n"+`poll_interval = "1m"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(cfg, path)

	require.NoError(t, os.WriteFile(path, []byte(`poll_interval = "nope"`), 0o600))
	require.Error(t, Reload(h, nil))
	assert.Equal(t, "1m", h.Config().PollInterval)
}

func TestReload_AppliesFixup(t *testing.T) {
	stateDir := t.TempDir()
	path := writeTestConfig(t, `state_dir = "`+stateDir+`"`)
	h := NewHolder(DefaultConfig(), path)

	err := Reload(h, func(c *Config) { c.ServerURL = "http://fixed:9000" })
	require.NoError(t, err)
	assert.Equal(t, "http://fixed:9000", h.Config().ServerURL)
	assert.Equal(t, stateDir, h.Config().StateDir)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	stateDir := t.TempDir()
	path := writeTestConfig(t, `state_dir = "`+stateDir+`"`+"\n"+`poll_interval = "1m"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(cfg, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan error, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, h, nil, func(err error) { reloaded <- err }, quietLogger())
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	content := `state_dir = "` + stateDir + `"` + "\n" + `poll_interval = "2m"`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded within 5 seconds")
	}

	assert.Equal(t, "2m", h.Config().PollInterval)

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_MissingDirectoryWaitsForCancel(t *testing.T) {
	h := NewHolder(DefaultConfig(), filepath.Join(t.TempDir(), "absent", "config.toml"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, Watch(ctx, h, nil, nil, quietLogger()))
}
