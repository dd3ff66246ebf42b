// Package identity provides the per-install device identifier attached to
// synced batches. The identifier lives in a small JSON key-value file next
// to the database, not in the database itself, so wiping the action queue
// never changes it.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"

	"github.com/google/uuid"
)

// deviceIDKey is the well-known key the identifier is stored under.
const deviceIDKey = "device_id"

// idPrefix marks generated identifiers in server-side sync logs.
const idPrefix = "device-"

// idLength is the number of random hex characters after the prefix.
const idLength = 12

const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// Identity resolves the device identifier. Safe for concurrent use.
type Identity struct {
	path   string
	logger *slog.Logger
	newID  func() string

	mu     gosync.Mutex
	cached string
}

// New returns an Identity backed by the key-value file at path.
func New(path string, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}

	return &Identity{
		path:   path,
		logger: logger,
		newID:  generate,
	}
}

// DeviceID returns the persisted identifier, generating and persisting one
// on first call. It never fails: when the file cannot be read or written,
// a fresh identifier is used for the lifetime of this process instead.
func (i *Identity) DeviceID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cached != "" {
		return i.cached
	}

	values, err := readValues(i.path)
	if err != nil {
		i.logger.Warn("device identity unreadable, regenerating",
			slog.String("path", i.path),
			slog.String("error", err.Error()),
		)

		values = nil
	}

	if id := storedID(values); id != "" {
		i.cached = id
		return id
	}

	id := i.newID()

	if values == nil {
		values = make(map[string]json.RawMessage, 1)
	}

	// Generated ids are plain hex; marshalling a string cannot fail.
	encoded, _ := json.Marshal(id)
	values[deviceIDKey] = encoded

	if err := writeValues(i.path, values); err != nil {
		i.logger.Warn("device identity not persisted, using ephemeral identifier",
			slog.String("path", i.path),
			slog.String("error", err.Error()),
		)
	} else {
		i.logger.Info("device identity created", slog.String("device_id", id))
	}

	i.cached = id

	return id
}

// Path returns the key-value file path.
func (i *Identity) Path() string {
	return i.path
}

func generate() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return idPrefix + hex[:idLength]
}

// storedID returns the trimmed device_id value, or "" when it is absent or
// not a JSON string.
func storedID(values map[string]json.RawMessage) string {
	raw, ok := values[deviceIDKey]
	if !ok {
		return ""
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}

	return strings.TrimSpace(id)
}

// readValues loads the key-value file. A missing file yields an empty map.
// Values stay raw so keys written by other tools survive a rewrite whatever
// their type.
func readValues(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", path, err)
	}

	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("identity: decoding %s: %w", path, err)
	}

	return values, nil
}

// writeValues replaces the key-value file atomically (temp file + rename in
// the same directory).
func writeValues(path string, values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("identity: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".device-*.tmp")
	if err != nil {
		return fmt.Errorf("identity: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("identity: renaming: %w", err)
	}

	success = true

	return nil
}
