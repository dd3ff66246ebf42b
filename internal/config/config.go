// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for lighthouse. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// All keys are flat at the top level of the file.
package config

import (
	"path/filepath"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
// The embedded sections are flattened by the TOML decoder, so every key
// lives at the top level of the file.
type Config struct {
	ServerConfig
	QueueConfig
	SyncConfig
	LoggingConfig
	NetworkConfig
}

// ServerConfig identifies the Lighthouse server and how to talk to it.
type ServerConfig struct {
	ServerURL   string `toml:"server_url"`
	APIToken    string `toml:"api_token"`
	IncludeRead bool   `toml:"include_read"`
}

// QueueConfig bounds the local action queue and store. The bounds exist so
// the queue cannot grow without limit while the server is unreachable.
type QueueConfig struct {
	StateDir     string `toml:"state_dir"`
	MaxQueueSize int    `toml:"max_queue_size"`
	MaxActionAge string `toml:"max_action_age"`
	MaxStoreSize string `toml:"max_store_size"`
}

// SyncConfig controls the watch daemon: how often to sync, how often to
// probe connectivity, and how fast consecutive passes may run.
type SyncConfig struct {
	PollInterval    string `toml:"poll_interval"`
	MinSyncInterval string `toml:"min_sync_interval"`
	HealthInterval  string `toml:"health_interval"`
	Websocket       bool   `toml:"websocket"`
	WebsocketURL    string `toml:"websocket_url"`
}

// LoggingConfig controls log output behavior: level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior. request_timeout bounds every
// request so a hung server cannot block a sync pass indefinitely.
type NetworkConfig struct {
	RequestTimeout string `toml:"request_timeout"`
	MaxRetries     int    `toml:"max_retries"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	ServerURL  string // --server
	StateDir   string // --state-dir
}

// Names of the files kept inside the state directory.
const (
	dbFileName     = "lighthouse.db"
	deviceFileName = "device.json"
	pidFileName    = "lighthouse.pid"
)

// DBPath returns the path of the SQLite store inside the state directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.StateDir, dbFileName)
}

// DevicePath returns the path of the device identity file.
func (c *Config) DevicePath() string {
	return filepath.Join(c.StateDir, deviceFileName)
}

// PIDPath returns the path of the watch daemon's PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.StateDir, pidFileName)
}

// The duration accessors below assume Validate has already accepted the
// config. A value that fails to parse yields the zero duration.

// MaxActionAgeDuration returns max_action_age. Zero disables age purging.
func (c *Config) MaxActionAgeDuration() time.Duration {
	return parseDurationOrZero(c.MaxActionAge)
}

// PollIntervalDuration returns poll_interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDurationOrZero(c.PollInterval)
}

// MinSyncIntervalDuration returns min_sync_interval.
func (c *Config) MinSyncIntervalDuration() time.Duration {
	return parseDurationOrZero(c.MinSyncInterval)
}

// HealthIntervalDuration returns health_interval.
func (c *Config) HealthIntervalDuration() time.Duration {
	return parseDurationOrZero(c.HealthInterval)
}

// RequestTimeoutDuration returns request_timeout.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return parseDurationOrZero(c.RequestTimeout)
}

// MaxStoreBytes returns max_store_size in bytes. Zero means unlimited.
func (c *Config) MaxStoreBytes() int64 {
	n, err := ParseSize(c.MaxStoreSize)
	if err != nil {
		return 0
	}

	return n
}

func parseDurationOrZero(s string) time.Duration {
	if s == "" || s == "0" {
		return 0
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
