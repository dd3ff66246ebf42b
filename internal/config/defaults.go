package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and work against a Lighthouse server
// running on the same machine without any config file.
const (
	defaultServerURL       = "http://localhost:8000"
	defaultMaxQueueSize    = 5000
	defaultMaxActionAge    = "720h"
	defaultMaxStoreSize    = "64MiB"
	defaultPollInterval    = "5m"
	defaultMinSyncInterval = "10s"
	defaultHealthInterval  = "30s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultRequestTimeout  = "30s"
	defaultMaxRetries      = 2
	defaultUserAgent       = "lighthouse-go/0.1"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ServerConfig:  defaultServerConfig(),
		QueueConfig:   defaultQueueConfig(),
		SyncConfig:    defaultSyncConfig(),
		LoggingConfig: defaultLoggingConfig(),
		NetworkConfig: defaultNetworkConfig(),
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ServerURL: defaultServerURL,
	}
}

func defaultQueueConfig() QueueConfig {
	return QueueConfig{
		StateDir:     DefaultDataDir(),
		MaxQueueSize: defaultMaxQueueSize,
		MaxActionAge: defaultMaxActionAge,
		MaxStoreSize: defaultMaxStoreSize,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:    defaultPollInterval,
		MinSyncInterval: defaultMinSyncInterval,
		HealthInterval:  defaultHealthInterval,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		RequestTimeout: defaultRequestTimeout,
		MaxRetries:     defaultMaxRetries,
		UserAgent:      defaultUserAgent,
	}
}
