package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minMaxQueueSize     = 1
	maxMaxQueueSize     = 1_000_000
	minStoreBytes       = 1 << 20 // 1 MiB
	minPollInterval     = 30 * time.Second
	minHealthInterval   = 1 * time.Second
	minRequestTimeout   = 1 * time.Second
	maxRequestTimeout   = 10 * time.Minute
	maxRetriesCeiling   = 10
	minActionAgeNonZero = 1 * time.Hour
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.ServerConfig)...)
	errs = append(errs, validateQueue(&cfg.QueueConfig)...)
	errs = append(errs, validateSync(&cfg.SyncConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.ServerURL == "" {
		return append(errs, fmt.Errorf("server_url: must not be empty"))
	}

	if err := validateHTTPURL(s.ServerURL); err != nil {
		errs = append(errs, fmt.Errorf("server_url: %w", err))
	}

	return errs
}

func validateQueue(q *QueueConfig) []error {
	var errs []error

	if q.StateDir == "" {
		errs = append(errs, fmt.Errorf("state_dir: must not be empty"))
	} else if !filepath.IsAbs(q.StateDir) {
		errs = append(errs, fmt.Errorf("state_dir: must be absolute, got %q", q.StateDir))
	}

	if q.MaxQueueSize < minMaxQueueSize || q.MaxQueueSize > maxMaxQueueSize {
		errs = append(errs, fmt.Errorf("max_queue_size: must be between %d and %d, got %d",
			minMaxQueueSize, maxMaxQueueSize, q.MaxQueueSize))
	}

	if q.MaxActionAge != "" && q.MaxActionAge != "0" {
		if err := validateDurationMin("max_action_age", q.MaxActionAge, minActionAgeNonZero); err != nil {
			errs = append(errs, err)
		}
	}

	if q.MaxStoreSize != "" && q.MaxStoreSize != "0" {
		n, err := ParseSize(q.MaxStoreSize)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("max_store_size: %w", err))
		case n < minStoreBytes:
			errs = append(errs, fmt.Errorf("max_store_size: must be at least 1MiB, got %q", q.MaxStoreSize))
		}
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if err := validateDurationMin("poll_interval", s.PollInterval, minPollInterval); err != nil {
		errs = append(errs, err)
	}

	if err := validateDurationMin("min_sync_interval", s.MinSyncInterval, 0); err != nil {
		errs = append(errs, err)
	}

	if err := validateDurationMin("health_interval", s.HealthInterval, minHealthInterval); err != nil {
		errs = append(errs, err)
	}

	if s.WebsocketURL != "" {
		u, err := url.Parse(s.WebsocketURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Errorf("websocket_url: must be a ws:// or wss:// URL, got %q", s.WebsocketURL))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	d, err := time.ParseDuration(n.RequestTimeout)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("request_timeout: invalid duration %q: %w", n.RequestTimeout, err))
	case d < minRequestTimeout || d > maxRequestTimeout:
		errs = append(errs, fmt.Errorf("request_timeout: must be between %s and %s, got %s",
			minRequestTimeout, maxRequestTimeout, d))
	}

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesCeiling {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d", maxRetriesCeiling, n.MaxRetries))
	}

	return errs
}

// validateDurationMin parses a duration and enforces a lower bound.
func validateDurationMin(key, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", key, minimum, d)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	return nil
}
