package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "LIGHTHOUSE_CONFIG"
	EnvServerURL = "LIGHTHOUSE_SERVER_URL"
	EnvStateDir  = "LIGHTHOUSE_STATE_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // LIGHTHOUSE_CONFIG: override config file path
	ServerURL  string // LIGHTHOUSE_SERVER_URL: server base URL
	StateDir   string // LIGHTHOUSE_STATE_DIR: state directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		StateDir:   os.Getenv(EnvStateDir),
	}
}
