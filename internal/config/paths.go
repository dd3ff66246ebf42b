package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName        = "lighthouse"
	configFileName = "config.toml"
)

// baseDir describes where one kind of per-user directory lives.
type baseDir struct {
	xdgVar   string // Linux override, e.g. XDG_CONFIG_HOME
	fallback string // relative to $HOME on Linux and other Unixes
}

var (
	configBase = baseDir{xdgVar: "XDG_CONFIG_HOME", fallback: ".config"}
	dataBase   = baseDir{xdgVar: "XDG_DATA_HOME", fallback: filepath.Join(".local", "share")}
)

// resolve returns the lighthouse directory under b for goos, or "" when
// the home directory is unknown. macOS keeps config and data together in
// Application Support.
func (b baseDir) resolve(goos string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "linux":
		if xdg := os.Getenv(b.xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	return filepath.Join(home, b.fallback, appName)
}

// DefaultConfigDir returns the per-user config directory.
func DefaultConfigDir() string {
	return configBase.resolve(runtime.GOOS)
}

// DefaultDataDir returns the per-user state directory holding the SQLite
// store, the device identity file, and the daemon PID file.
func DefaultDataDir() string {
	return dataBase.resolve(runtime.GOOS)
}

// DefaultConfigPath is the config file used when neither
// LIGHTHOUSE_CONFIG nor --config names one.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
