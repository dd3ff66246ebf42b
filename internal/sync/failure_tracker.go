package sync

import (
	"log/slog"
	stdsync "sync"
	"time"
)

// stallThreshold is the number of consecutive failed passes after which a
// group is reported as stalled.
const stallThreshold = 3

// failureRecord tracks consecutive failures for one group.
type failureRecord struct {
	count   int
	lastErr string
	firstAt time.Time
}

// failureTracker counts consecutive failures per group so a backlog that
// stops draining is visible in the logs. It warns once when a group
// reaches stallThreshold and logs recovery when the group next succeeds.
// Thread-safe.
type failureTracker struct {
	mu      stdsync.Mutex
	records map[string]*failureRecord
	logger  *slog.Logger
	nowFunc func() time.Time
}

func newFailureTracker(logger *slog.Logger) *failureTracker {
	return &failureTracker{
		records: make(map[string]*failureRecord),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// recordFailure increments the group's counter and returns the new count.
func (ft *failureTracker) recordFailure(group, errMsg string) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	rec, ok := ft.records[group]
	if !ok {
		rec = &failureRecord{firstAt: ft.nowFunc()}
		ft.records[group] = rec
	}

	rec.count++
	rec.lastErr = errMsg

	if rec.count == stallThreshold {
		ft.logger.Warn("sync group stalled after repeated failures",
			slog.String("group", group),
			slog.Int("failures", rec.count),
			slog.String("last_error", errMsg),
			slog.Duration("since", ft.nowFunc().Sub(rec.firstAt)),
		)
	}

	return rec.count
}

// recordSuccess clears the group's record.
func (ft *failureTracker) recordSuccess(group string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	rec, ok := ft.records[group]
	if !ok {
		return
	}

	if rec.count >= stallThreshold {
		ft.logger.Info("sync group recovered",
			slog.String("group", group),
			slog.Int("failures", rec.count),
		)
	}

	delete(ft.records, group)
}

// consecutive returns the group's current failure count.
func (ft *failureTracker) consecutive(group string) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if rec, ok := ft.records[group]; ok {
		return rec.count
	}

	return 0
}
