package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_ServesLatestConfig(t *testing.T) {
	first := DefaultConfig()
	h := NewHolder(first, "/etc/lighthouse/config.toml")

	assert.Same(t, first, h.Config())
	assert.Equal(t, "/etc/lighthouse/config.toml", h.Path())

	next := DefaultConfig()
	next.PollInterval = "10m"
	h.Update(next)

	assert.Same(t, next, h.Config())
	assert.Equal(t, "10m", h.Config().PollInterval)
	assert.Equal(t, "/etc/lighthouse/config.toml", h.Path(), "path survives updates")
}

func TestHolder_ReadersDuringReload(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for range 8 {
		wg.Go(func() {
			for range 200 {
				cfg := h.Config()
				assert.NotEmpty(t, cfg.PollInterval)
			}
		})
	}

	wg.Go(func() {
		for range 200 {
			h.Update(DefaultConfig())
		}
	})

	wg.Wait()
}
