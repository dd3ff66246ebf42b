package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/home/user/.local/share/lighthouse"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/home/user/.config/lighthouse/config.toml", &buf))

	output := buf.String()
	assert.Contains(t, output, "file: /home/user/.config/lighthouse/config.toml")
	assert.Contains(t, output, `server_url        = "http://localhost:8000"`)
	assert.Contains(t, output, "max_queue_size    = 5000")
	assert.Contains(t, output, `max_action_age    = "720h"`)
	assert.Contains(t, output, `poll_interval     = "5m"`)
	assert.Contains(t, output, "# network")
	assert.NotContains(t, output, "api_token")
	assert.NotContains(t, output, "websocket_url")
	assert.NotContains(t, output, "log_file")
}

func TestRenderEffective_TokenIsMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIToken = "s3cret"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "", &buf))

	output := buf.String()
	assert.Contains(t, output, `api_token         = "(set)"`)
	assert.NotContains(t, output, "s3cret")
	assert.NotContains(t, output, "file:")
}

func TestRenderEffective_OptionalFieldsShown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = "/var/log/lighthouse.log"
	cfg.WebsocketURL = "ws://example.com/api/ws"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "", &buf))

	assert.Contains(t, buf.String(), `log_file          = "/var/log/lighthouse.log"`)
	assert.Contains(t, buf.String(), `websocket_url     = "ws://example.com/api/ws"`)
}

// The rendered output is itself a valid config file.
func TestRenderEffective_ParsesBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerURL = "https://news.example.com"
	cfg.MaxQueueSize = 42
	cfg.Websocket = true

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "", &buf))

	parsed := &Config{}
	md, err := toml.Decode(buf.String(), parsed)
	require.NoError(t, err)
	require.NoError(t, checkUnknownKeys(&md))

	assert.Equal(t, *cfg, *parsed)
}

// failWriter is a writer that always fails, used to exercise error paths
// in the errWriter pattern.
type failWriter struct{}

var errWriteFailed = errors.New("write failed")

func (failWriter) Write([]byte) (int, error) {
	return 0, errWriteFailed
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), "", failWriter{})
	assert.ErrorIs(t, err, errWriteFailed)
}
