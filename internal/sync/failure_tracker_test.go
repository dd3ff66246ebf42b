package sync

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureTracker_WarnsOnceAtThreshold(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ft := newFailureTracker(slog.New(slog.NewTextHandler(&buf, nil)))

	for want := 1; want <= stallThreshold+2; want++ {
		assert.Equal(t, want, ft.recordFailure("read", "HTTP 503"))
	}

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("sync group stalled")))
	assert.Equal(t, stallThreshold+2, ft.consecutive("read"))
}

func TestFailureTracker_SuccessClears(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ft := newFailureTracker(slog.New(slog.NewTextHandler(&buf, nil)))

	for range stallThreshold {
		ft.recordFailure("settings", "timeout")
	}

	ft.recordSuccess("settings")
	assert.Zero(t, ft.consecutive("settings"))
	assert.Contains(t, buf.String(), "sync group recovered")

	assert.Equal(t, 1, ft.recordFailure("settings", "timeout"))
}

func TestFailureTracker_GroupsIndependent(t *testing.T) {
	t.Parallel()

	ft := newFailureTracker(slog.Default())

	ft.recordFailure("read", "x")
	ft.recordFailure("read", "x")
	ft.recordFailure("rating", "y")

	assert.Equal(t, 2, ft.consecutive("read"))
	assert.Equal(t, 1, ft.consecutive("rating"))
	assert.Zero(t, ft.consecutive("settings"))

	ft.recordSuccess("rating")
	assert.Equal(t, 2, ft.consecutive("read"))
}

func TestFailureTracker_StallReportsDuration(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ft := newFailureTracker(slog.New(slog.NewTextHandler(&buf, nil)))

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ft.nowFunc = func() time.Time { return start }
	ft.recordFailure("read", "x")

	ft.nowFunc = func() time.Time { return start.Add(10 * time.Minute) }
	ft.recordFailure("read", "x")
	ft.recordFailure("read", "x")

	assert.Contains(t, buf.String(), "since=10m0s")
}
