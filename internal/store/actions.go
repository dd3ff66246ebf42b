package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ActionType identifies the kind of user intent a queued action records.
type ActionType string

// Recognized action types. The actions table rejects anything else.
const (
	ActionRead     ActionType = "read"
	ActionRating   ActionType = "rating"
	ActionSettings ActionType = "settings"
)

// Valid reports whether t is one of the recognized action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionRead, ActionRating, ActionSettings:
		return true
	default:
		return false
	}
}

// Action is one queued user intent awaiting server confirmation. ID is
// assigned by the database, increases monotonically, and is never reused.
type Action struct {
	ID         int64
	Type       ActionType
	Payload    json.RawMessage
	EnqueuedAt time.Time
}

// deleteChunkSize keeps IN (...) lists under SQLite's bound-variable limit.
const deleteChunkSize = 500

const (
	sqlCountActions = `SELECT COUNT(*) FROM actions`
	sqlInsertAction = `INSERT INTO actions (type, payload, timestamp) VALUES (?, ?, ?)`
	sqlListActions  = `SELECT id, type, payload, timestamp FROM actions ORDER BY id`
	sqlCountByType  = `SELECT type, COUNT(*) FROM actions GROUP BY type`
	sqlPurgeActions = `DELETE FROM actions WHERE timestamp < ?`
	sqlDeletePrefix = `DELETE FROM actions WHERE id IN (`
	sqlOldestAction = `SELECT MIN(timestamp) FROM actions`
)

// EnqueueAction appends an action with a store-assigned identifier and the
// current time, returning once committed. When the queue is at its cap or
// the database is full, the action is rejected with ErrStorageQuotaExceeded
// rather than dropped.
func (s *Store) EnqueueAction(ctx context.Context, t ActionType, payload json.RawMessage) (Action, error) {
	if !t.Valid() {
		return Action{}, fmt.Errorf("store: unknown action type %q", t)
	}

	if !json.Valid(payload) {
		return Action{}, fmt.Errorf("store: %s payload is not valid JSON", t)
	}

	db, err := s.conn(ctx)
	if err != nil {
		return Action{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Action{}, classifyWrite("begin enqueue", err)
	}
	defer tx.Rollback()

	if s.opts.MaxQueueSize > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, sqlCountActions).Scan(&count); err != nil {
			return Action{}, fmt.Errorf("store: counting actions: %w", err)
		}

		if count >= s.opts.MaxQueueSize {
			return Action{}, fmt.Errorf("%w: queue holds %d actions (max %d)",
				ErrStorageQuotaExceeded, count, s.opts.MaxQueueSize)
		}
	}

	now := s.nowFunc()

	result, err := tx.ExecContext(ctx, sqlInsertAction, string(t), string(payload), now.UnixMilli())
	if err != nil {
		return Action{}, classifyWrite("enqueue "+string(t), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Action{}, fmt.Errorf("store: last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Action{}, classifyWrite("commit enqueue", err)
	}

	s.logger.Debug("action enqueued",
		slog.Int64("id", id),
		slog.String("type", string(t)),
	)

	return Action{
		ID:         id,
		Type:       t,
		Payload:    payload,
		EnqueuedAt: time.UnixMilli(now.UnixMilli()),
	}, nil
}

// ListPendingActions returns every queued action in insertion order.
func (s *Store) ListPendingActions(ctx context.Context) ([]Action, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, sqlListActions)
	if err != nil {
		return nil, fmt.Errorf("store: listing actions: %w", err)
	}
	defer rows.Close()

	var actions []Action

	for rows.Next() {
		var (
			a       Action
			typ     string
			payload string
			ts      int64
		)

		if err := rows.Scan(&a.ID, &typ, &payload, &ts); err != nil {
			return nil, fmt.Errorf("store: scanning action row: %w", err)
		}

		a.Type = ActionType(typ)
		a.Payload = json.RawMessage(payload)
		a.EnqueuedAt = time.UnixMilli(ts)
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating action rows: %w", err)
	}

	return actions, nil
}

// DeleteActions removes the actions with the given identifiers in one
// transaction and returns how many rows were removed. Identifiers that no
// longer exist are ignored, so a retried cleanup is harmless.
func (s *Store) DeleteActions(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifyWrite("begin delete", err)
	}
	defer tx.Rollback()

	var deleted int64

	for start := 0; start < len(ids); start += deleteChunkSize {
		chunk := ids[start:min(start+deleteChunkSize, len(ids))]

		query := sqlDeletePrefix + strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + ")"

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		result, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			return 0, classifyWrite("delete actions", execErr)
		}

		n, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return 0, fmt.Errorf("store: delete rows affected: %w", rowsErr)
		}

		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyWrite("commit delete", err)
	}

	return deleted, nil
}

// PurgeActionsOlderThan deletes actions enqueued before cutoff and returns
// how many were removed.
func (s *Store) PurgeActionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, sqlPurgeActions, cutoff.UnixMilli())
	if err != nil {
		return 0, classifyWrite("purge actions", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: purge rows affected: %w", err)
	}

	if n > 0 {
		s.logger.Warn("purged expired actions",
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
	}

	return n, nil
}

// QueueStats summarizes the backlog.
type QueueStats struct {
	Total  int
	ByType map[ActionType]int
	Oldest time.Time // zero when the queue is empty
}

// Stats returns the pending-action counts per type and the oldest enqueue time.
func (s *Store) Stats(ctx context.Context) (QueueStats, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return QueueStats{}, err
	}

	stats := QueueStats{ByType: make(map[ActionType]int)}

	rows, err := db.QueryContext(ctx, sqlCountByType)
	if err != nil {
		return QueueStats{}, fmt.Errorf("store: counting by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			typ   string
			count int
		)

		if err := rows.Scan(&typ, &count); err != nil {
			return QueueStats{}, fmt.Errorf("store: scanning count row: %w", err)
		}

		stats.ByType[ActionType(typ)] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return QueueStats{}, fmt.Errorf("store: iterating count rows: %w", err)
	}

	if stats.Total == 0 {
		return stats, nil
	}

	var oldest int64
	if err := db.QueryRowContext(ctx, sqlOldestAction).Scan(&oldest); err != nil {
		return QueueStats{}, fmt.Errorf("store: oldest action: %w", err)
	}

	stats.Oldest = time.UnixMilli(oldest)

	return stats, nil
}
