// Package sync drains the action queue to the server. One pass partitions
// pending actions by type and sends each group as a single batch; a group
// that fails stays queued for the next pass while the other groups still
// clear. Nothing inside a pass retries: the watch loop decides when the
// next pass runs.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/queue"
	"github.com/tonimelisma/lighthouse/internal/store"
)

// ActionStore is the part of the durable store a pass reads and clears.
// Satisfied by *store.Store.
type ActionStore interface {
	ListPendingActions(ctx context.Context) ([]store.Action, error)
	DeleteActions(ctx context.Context, ids []int64) (int64, error)
	PurgeActionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Transport sends batches to the server. Satisfied by *api.Client.
type Transport interface {
	SyncReadStatus(ctx context.Context, urls []string, deviceID string) (*api.ReadSyncResult, error)
	SyncRatings(ctx context.Context, ratings []api.Rating, deviceID string) error
	ReplaceSettings(ctx context.Context, doc json.RawMessage) error
	TriggerRefresh(ctx context.Context) (*api.RefreshResult, error)
}

// DeviceIdentity supplies the attribution tag for batches. Satisfied by
// *identity.Identity.
type DeviceIdentity interface {
	DeviceID() string
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Store     ActionStore
	Transport Transport
	Identity  DeviceIdentity
	Logger    *slog.Logger

	// MaxActionAge purges actions older than this at the start of each
	// pass. Zero keeps actions until they are delivered.
	MaxActionAge time.Duration
}

// Engine runs sync passes. A single Engine may be shared; concurrent
// passes are safe because deletion is by identifier, but the watch loop
// coalesces them anyway.
type Engine struct {
	store        ActionStore
	transport    Transport
	identity     DeviceIdentity
	logger       *slog.Logger
	maxActionAge atomic.Int64 // time.Duration
	failures     *failureTracker
	nowFunc      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:     cfg.Store,
		transport: cfg.Transport,
		identity:  cfg.Identity,
		logger:    logger,
		failures:  newFailureTracker(logger),
		nowFunc:   time.Now,
	}

	e.maxActionAge.Store(int64(cfg.MaxActionAge))

	return e
}

// SetMaxActionAge changes the purge age for later passes.
func (e *Engine) SetMaxActionAge(d time.Duration) {
	e.maxActionAge.Store(int64(d))
}

// Sync runs one pass. Group failures are recorded in the report and leave
// those actions queued; they are never returned as errors. The only error
// is failing to read the queue itself.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	start := e.nowFunc()
	report := &Report{StartedAt: start}

	pending, err := e.store.ListPendingActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: loading pending actions: %w", err)
	}

	if len(pending) > 0 {
		report.Purged = e.purgeExpired(ctx, start)
	}

	if report.Purged > 0 {
		pending, err = e.store.ListPendingActions(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync: reloading pending actions: %w", err)
		}
	}

	if len(pending) == 0 {
		report.Duration = e.nowFunc().Sub(start)
		e.logger.Debug("sync pass: queue empty", slog.Int64("purged", report.Purged))

		return report, nil
	}

	deviceID := e.identity.DeviceID()
	groups := partition(pending)

	e.logger.Info("sync pass starting",
		slog.Int("pending", len(pending)),
		slog.Int("reads", len(groups.reads)),
		slog.Int("ratings", len(groups.ratings)),
		slog.Int("settings", len(groups.settings)),
	)

	// Groups run one after another. Each is independent: a failure in one
	// never stops the next.
	report.Groups = []GroupResult{
		e.syncReads(ctx, groups.reads, deviceID),
		e.syncRatings(ctx, groups.ratings, deviceID),
		e.syncSettings(ctx, groups.settings),
	}

	for i := range report.Groups {
		e.track(&report.Groups[i])
	}

	report.Duration = e.nowFunc().Sub(start)

	e.logger.Info("sync pass complete",
		slog.Int64("deleted", report.Deleted()),
		slog.Int("failed_groups", report.FailedGroups()),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// purgeExpired drops actions past the maximum age. Failure only logs: an
// overfull queue is no reason to skip delivering what it holds.
func (e *Engine) purgeExpired(ctx context.Context, now time.Time) int64 {
	maxAge := time.Duration(e.maxActionAge.Load())
	if maxAge <= 0 {
		return 0
	}

	n, err := e.store.PurgeActionsOlderThan(ctx, now.Add(-maxAge))
	if err != nil {
		e.logger.Warn("purging expired actions failed",
			slog.String("error", err.Error()),
		)

		return 0
	}

	return n
}

type partitioned struct {
	reads    []store.Action
	ratings  []store.Action
	settings []store.Action
}

// partition splits actions by type, keeping queue order within each group.
func partition(actions []store.Action) partitioned {
	var p partitioned

	for _, a := range actions {
		switch a.Type {
		case store.ActionRead:
			p.reads = append(p.reads, a)
		case store.ActionRating:
			p.ratings = append(p.ratings, a)
		case store.ActionSettings:
			p.settings = append(p.settings, a)
		}
	}

	return p
}

// syncReads sends every queued URL in one batch and, on success, deletes
// exactly the actions that contributed one. Actions without a URL are left
// alone.
func (e *Engine) syncReads(ctx context.Context, actions []store.Action, deviceID string) GroupResult {
	result := GroupResult{Type: store.ActionRead, Pending: len(actions)}

	urls := make([]string, 0, len(actions))
	ids := make([]int64, 0, len(actions))

	for _, a := range actions {
		url, ok := queue.DecodeRead(a)
		if !ok {
			result.Skipped = append(result.Skipped, a.ID)
			continue
		}

		urls = append(urls, url)
		ids = append(ids, a.ID)
	}

	e.logSkipped(result, "unreadable read actions left in queue")

	if len(urls) == 0 {
		return result
	}

	result.Attempted = true

	if _, err := e.transport.SyncReadStatus(ctx, urls, deviceID); err != nil {
		result.Err = err
		return result
	}

	result.Sent = len(urls)
	result.Deleted, result.Err = e.clear(ctx, store.ActionRead, ids)

	return result
}

// syncRatings sends every queued rating in enqueue order, duplicates
// included, and on success deletes the whole group, unreadable entries
// with it. A group with nothing readable sends no request.
func (e *Engine) syncRatings(ctx context.Context, actions []store.Action, deviceID string) GroupResult {
	result := GroupResult{Type: store.ActionRating, Pending: len(actions)}

	ratings := make([]api.Rating, 0, len(actions))
	ids := make([]int64, 0, len(actions))

	for _, a := range actions {
		ids = append(ids, a.ID)

		r, ok := queue.DecodeRating(a)
		if !ok {
			result.Skipped = append(result.Skipped, a.ID)
			continue
		}

		ratings = append(ratings, r)
	}

	if len(ratings) == 0 {
		e.logSkipped(result, "unreadable rating actions left in queue")
		return result
	}

	result.Attempted = true

	if err := e.transport.SyncRatings(ctx, ratings, deviceID); err != nil {
		result.Err = err
		return result
	}

	result.Sent = len(ratings)
	result.Deleted, result.Err = e.clear(ctx, store.ActionRating, ids)

	if result.Err == nil {
		e.logSkipped(result, "unreadable rating actions cleared with delivered batch")
	}

	return result
}

// syncSettings sends only the newest settings document. On success every
// settings action is deleted, superseded ones included, and the server is
// asked to recompute; a failed recompute does not undo the clear.
func (e *Engine) syncSettings(ctx context.Context, actions []store.Action) GroupResult {
	result := GroupResult{Type: store.ActionSettings, Pending: len(actions)}

	if len(actions) == 0 {
		return result
	}

	latest := actions[0]
	ids := make([]int64, 0, len(actions))

	for _, a := range actions {
		ids = append(ids, a.ID)

		// Identifiers are monotonic; timestamps are informational only.
		if a.ID > latest.ID {
			latest = a
		}
	}

	result.Attempted = true
	result.SentID = latest.ID

	if err := e.transport.ReplaceSettings(ctx, latest.Payload); err != nil {
		result.Err = err
		return result
	}

	result.Sent = 1
	result.Deleted, result.Err = e.clear(ctx, store.ActionSettings, ids)

	if _, err := e.transport.TriggerRefresh(ctx); err != nil {
		result.RefreshErr = err
		e.logger.Warn("server refresh after settings update failed",
			slog.String("error", err.Error()),
		)
	}

	return result
}

// clear deletes delivered actions. A failure here means they will be sent
// again next pass, which the server tolerates.
func (e *Engine) clear(ctx context.Context, group store.ActionType, ids []int64) (int64, error) {
	n, err := e.store.DeleteActions(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("sync: clearing delivered %s actions: %w", group, err)
	}

	return n, nil
}

func (e *Engine) logSkipped(result GroupResult, msg string) {
	if len(result.Skipped) == 0 {
		return
	}

	e.logger.Warn(msg,
		slog.String("group", string(result.Type)),
		slog.Int("count", len(result.Skipped)),
		slog.Int64("first_id", result.Skipped[0]),
	)
}

// track feeds a group outcome into the failure tracker.
func (e *Engine) track(result *GroupResult) {
	key := string(result.Type)

	switch {
	case result.Err != nil:
		result.ConsecutiveFailures = e.failures.recordFailure(key, result.Err.Error())

		e.logger.Warn("sync group failed, actions stay queued",
			slog.String("group", key),
			slog.Int("pending", result.Pending),
			slog.String("error", result.Err.Error()),
		)
	case result.Attempted:
		e.failures.recordSuccess(key)
	}
}

// ConsecutiveFailures returns how many passes in a row the group has failed.
func (e *Engine) ConsecutiveFailures(t store.ActionType) int {
	return e.failures.consecutive(string(t))
}
