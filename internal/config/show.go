package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration to w as annotated TOML,
// grouped by concern. This powers "config show", giving users visibility
// into the effective values after all four override layers have been applied.
// The API token is never printed.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration")

	if path != "" {
		ew.printf(" (file: %s)", path)
	}

	ew.printf("\n\n")

	renderServerSection(ew, &cfg.ServerConfig)
	renderQueueSection(ew, &cfg.QueueConfig)
	renderSyncSection(ew, &cfg.SyncConfig)
	renderLoggingSection(ew, &cfg.LoggingConfig)
	renderNetworkSection(ew, &cfg.NetworkConfig)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderServerSection(ew *errWriter, s *ServerConfig) {
	ew.printf("# server\n")
	ew.printf("server_url        = %q\n", s.ServerURL)

	if s.APIToken != "" {
		ew.printf("api_token         = %q\n", "(set)")
	}

	ew.printf("include_read      = %t\n", s.IncludeRead)
	ew.printf("\n")
}

func renderQueueSection(ew *errWriter, q *QueueConfig) {
	ew.printf("# queue\n")
	ew.printf("state_dir         = %q\n", q.StateDir)
	ew.printf("max_queue_size    = %d\n", q.MaxQueueSize)
	ew.printf("max_action_age    = %q\n", q.MaxActionAge)
	ew.printf("max_store_size    = %q\n", q.MaxStoreSize)
	ew.printf("\n")
}

func renderSyncSection(ew *errWriter, s *SyncConfig) {
	ew.printf("# sync\n")
	ew.printf("poll_interval     = %q\n", s.PollInterval)
	ew.printf("min_sync_interval = %q\n", s.MinSyncInterval)
	ew.printf("health_interval   = %q\n", s.HealthInterval)
	ew.printf("websocket         = %t\n", s.Websocket)

	if s.WebsocketURL != "" {
		ew.printf("websocket_url     = %q\n", s.WebsocketURL)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("# logging\n")
	ew.printf("log_level         = %q\n", l.LogLevel)
	ew.printf("log_format        = %q\n", l.LogFormat)

	if l.LogFile != "" {
		ew.printf("log_file          = %q\n", l.LogFile)
	}

	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("# network\n")
	ew.printf("request_timeout   = %q\n", n.RequestTimeout)
	ew.printf("max_retries       = %d\n", n.MaxRetries)
	ew.printf("user_agent        = %q\n", n.UserAgent)
}
