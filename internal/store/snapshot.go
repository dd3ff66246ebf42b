package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// snapshotKey is the fixed key of the single dashboard row.
const snapshotKey = "latest"

const (
	sqlUpsertSnapshot = `INSERT INTO dashboard (id, payload, timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 payload = excluded.payload,
		 timestamp = excluded.timestamp`

	sqlGetSnapshot = `SELECT payload, timestamp FROM dashboard WHERE id = ?`
)

// Snapshot is the last dashboard payload fetched successfully.
type Snapshot struct {
	Payload    json.RawMessage
	CapturedAt time.Time
}

// PutSnapshot replaces the single dashboard snapshot. It returns once the
// write is committed.
func (s *Store) PutSnapshot(ctx context.Context, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("store: snapshot payload is not valid JSON")
	}

	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	now := s.nowFunc().UnixMilli()
	if _, err := db.ExecContext(ctx, sqlUpsertSnapshot, snapshotKey, []byte(payload), now); err != nil {
		return classifyWrite("put snapshot", err)
	}

	return nil
}

// GetSnapshot returns the cached snapshot. The boolean is false when no
// snapshot has ever been written; that is not an error.
func (s *Store) GetSnapshot(ctx context.Context) (*Snapshot, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}

	var (
		payload []byte
		ts      int64
	)

	err = db.QueryRowContext(ctx, sqlGetSnapshot, snapshotKey).Scan(&payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("store: get snapshot: %w", err)
	}

	return &Snapshot{
		Payload:    json.RawMessage(payload),
		CapturedAt: time.UnixMilli(ts),
	}, true, nil
}
