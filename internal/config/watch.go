package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors produce when saving
// (truncate + write, or write-to-temp + rename).
const reloadDebounce = 250 * time.Millisecond

// Reload re-reads the holder's config file and, if it parses and validates,
// swaps it into the holder. Overrides that came from the environment or CLI
// are reapplied by the caller-supplied fixup, which may be nil. On error the
// previous config stays in place.
func Reload(h *Holder, fixup func(*Config)) error {
	cfg, err := LoadOrDefault(h.Path())
	if err != nil {
		return err
	}

	if fixup != nil {
		fixup(cfg)
	}

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	h.Update(cfg)

	return nil
}

// Watch watches the holder's config file and calls Reload after each change,
// then onReload with the outcome. It watches the parent directory rather than
// the file so that atomic rename-over saves are seen. Blocks until ctx is
// canceled. A missing parent directory is not an error; there is nothing to
// watch and Watch simply waits for cancellation.
func Watch(ctx context.Context, h *Holder, fixup func(*Config), onReload func(error), logger *slog.Logger) error {
	path := h.Path()
	if path == "" {
		<-ctx.Done()
		return nil
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config directory absent, not watching", slog.String("dir", dir))
		<-ctx.Done()

		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))

		case <-debounce:
			debounce = nil
			reloadErr := Reload(h, fixup)

			if reloadErr != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", path),
					slog.String("error", reloadErr.Error()),
				)
			} else {
				logger.Info("config reloaded", slog.String("path", path))
			}

			if onReload != nil {
				onReload(reloadErr)
			}
		}
	}
}
