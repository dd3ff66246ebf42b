package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// configFilePermissions keeps the file private: it may hold api_token.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by CreateConfig when the file is already there.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate is the config file content written by "config init".
// Every setting is present as a commented-out default so users can
// discover each option without reading docs. Later edits through SetKey
// are text-level, so user comments survive.
const configTemplate = `# lighthouse configuration
# Uncomment and modify to override defaults.

# ── Server ──
# server_url = "http://localhost:8000"
# api_token = ""
# include_read = false

# ── Offline queue ──
# state_dir = "~/.local/share/lighthouse"
# max_queue_size = 5000
# max_action_age = "720h"
# max_store_size = "64MiB"

# ── sync --watch ──
# poll_interval = "5m"
# min_sync_interval = "10s"
# health_interval = "30s"
# websocket = false
# websocket_url = ""

# ── Logging ──
# log_level = "info"
# log_format = "auto"
# log_file = ""

# ── Network ──
# request_timeout = "30s"
# max_retries = 2
# user_agent = "lighthouse-go/0.1"
`

// CreateConfig writes the default template to path. Parent directories
// are created as needed. An existing file is left alone and reported
// with ErrConfigExists.
func CreateConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	slog.Info("creating config file", "path", path)

	return atomicWriteFile(path, []byte(configTemplate))
}

// SetKey sets a top-level key in the config file at path. An existing
// assignment is replaced in place; otherwise a commented-out default for
// the key is uncommented and replaced; otherwise the line is appended.
// The file is created from the template when missing. The result must
// still load and validate, or nothing is written.
func SetKey(path, key, value string) error {
	if !isConfigKey(key) {
		return buildKeyError(key)
	}

	slog.Info("setting config key", "path", path, "key", key)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte(configTemplate)
	} else if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	newLine := fmt.Sprintf("%s = %s", key, formatTOMLValue(key, value))
	lines := setKeyLine(strings.Split(string(data), "\n"), key, newLine)
	content := strings.Join(lines, "\n")

	if err := checkContent(content); err != nil {
		return err
	}

	return atomicWriteFile(path, []byte(content))
}

// setKeyLine replaces the assignment for key, or its commented default,
// or appends newLine before the trailing newline.
func setKeyLine(lines []string, key, newLine string) []string {
	commented := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if matchesKey(trimmed, key) {
			lines[i] = newLine

			return lines
		}

		if commented < 0 && strings.HasPrefix(trimmed, "#") &&
			matchesKey(strings.TrimSpace(strings.TrimPrefix(trimmed, "#")), key) {
			commented = i
		}
	}

	if commented >= 0 {
		lines[commented] = newLine

		return lines
	}

	if n := len(lines); n > 0 && lines[n-1] == "" {
		return append(lines[:n-1], newLine, "")
	}

	return append(lines, newLine)
}

func matchesKey(line, key string) bool {
	rest, ok := strings.CutPrefix(line, key)
	if !ok {
		return false
	}

	return strings.HasPrefix(strings.TrimSpace(rest), "=")
}

// intKeys and boolKeys are written bare; everything else is quoted.
var (
	intKeys  = map[string]bool{"max_queue_size": true, "max_retries": true}
	boolKeys = map[string]bool{"include_read": true, "websocket": true}
)

// formatTOMLValue formats value for key. Values that do not parse as the
// key's type are quoted, and the decode check rejects them.
func formatTOMLValue(key, value string) string {
	switch {
	case boolKeys[key]:
		if _, err := strconv.ParseBool(value); err == nil {
			return strings.ToLower(value)
		}
	case intKeys[key]:
		if _, err := strconv.Atoi(value); err == nil {
			return value
		}
	}

	return strconv.Quote(value)
}

// checkContent decodes and validates a would-be config file.
func checkContent(content string) error {
	cfg := DefaultConfig()

	md, err := toml.Decode(content, cfg)
	if err != nil {
		return fmt.Errorf("config: invalid value: %w", err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return err
	}

	cfg.StateDir = expandTilde(cfg.StateDir)

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash. Parent directories are created
// as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
