// Package dashboard keeps the last good dashboard payload for offline use
// and loads the dashboard live when the server is reachable.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/lighthouse/internal/store"
)

// ErrNoCache means no dashboard has ever been saved. It is distinct from a
// saved dashboard that happens to be empty.
var ErrNoCache = errors.New("dashboard: no cache available")

// SnapshotStore is the part of the durable store holding the snapshot.
// Satisfied by *store.Store.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, payload json.RawMessage) error
	GetSnapshot(ctx context.Context) (*store.Snapshot, bool, error)
}

// Cache is the snapshot cache manager: one slot, overwritten on save.
type Cache struct {
	store SnapshotStore
}

// NewCache returns a Cache over s.
func NewCache(s SnapshotStore) *Cache {
	return &Cache{store: s}
}

// Save replaces the cached payload. Call it after every successful live
// fetch.
func (c *Cache) Save(ctx context.Context, payload json.RawMessage) error {
	if err := c.store.PutSnapshot(ctx, payload); err != nil {
		return fmt.Errorf("dashboard: saving snapshot: %w", err)
	}

	return nil
}

// Load returns the last saved payload and when it was captured, or
// ErrNoCache when nothing was ever saved.
func (c *Cache) Load(ctx context.Context) (json.RawMessage, time.Time, error) {
	snap, found, err := c.store.GetSnapshot(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("dashboard: loading snapshot: %w", err)
	}

	if !found {
		return nil, time.Time{}, ErrNoCache
	}

	return snap.Payload, snap.CapturedAt, nil
}
