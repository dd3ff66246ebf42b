package config

import "sync/atomic"

// Holder is the daemon's live view of its config. Reload and Watch swap a
// new *Config in; readers always see a complete, validated config. The
// file path is fixed for the daemon's lifetime.
type Holder struct {
	cfg  atomic.Pointer[Config]
	path string
}

// NewHolder returns a Holder serving cfg, which was loaded from path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cfg.Store(cfg)

	return h
}

// Config returns the current config. Callers must treat it as read-only.
func (h *Holder) Config() *Config {
	return h.cfg.Load()
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the current config.
func (h *Holder) Update(cfg *Config) {
	h.cfg.Store(cfg)
}
