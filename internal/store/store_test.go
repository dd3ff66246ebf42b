package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger that writes to t.Log,
// so all activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// newTestStore creates an opened Store in a temp directory, registering
// cleanup with t.Cleanup.
func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()

	s := New(filepath.Join(t.TempDir(), "lighthouse.db"), opts, testLogger(t))
	require.NoError(t, s.Open(context.Background()))

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close(): %v", err)
		}
	})

	return s
}

func TestOpen_Idempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Open(ctx))
}

func TestOpen_WALModeAndMigrations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	var journalMode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM goose_db_version WHERE version_id > 0").Scan(&count))
	assert.Positive(t, count)
}

func TestOpen_LazyOnFirstOperation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "lighthouse.db")
	s := New(path, Options{}, testLogger(t))
	defer s.Close()

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "database must not exist before first use")

	_, found, err := s.GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	_, statErr = os.Stat(path)
	require.NoError(t, statErr)
}

func TestOpen_StorageUnavailable(t *testing.T) {
	t.Parallel()

	// A regular file where the state directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := New(filepath.Join(blocker, "lighthouse.db"), Options{}, testLogger(t))
	defer s.Close()

	err := s.Open(context.Background())
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = s.EnqueueAction(context.Background(), ActionRead, json.RawMessage(`{"url":"https://a"}`))
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestClose_NeverOpened(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "x.db"), Options{}, testLogger(t))
	require.NoError(t, s.Close())
}

func TestSnapshot_EmptyIsNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})

	snap, found, err := s.GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, snap)
}

func TestSnapshot_PutOverwrites(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	first := time.UnixMilli(1_700_000_000_000)
	s.nowFunc = func() time.Time { return first }
	require.NoError(t, s.PutSnapshot(ctx, json.RawMessage(`{"x":1}`)))

	second := first.Add(time.Minute)
	s.nowFunc = func() time.Time { return second }
	require.NoError(t, s.PutSnapshot(ctx, json.RawMessage(`{"x":2}`)))

	snap, found, err := s.GetSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"x":2}`, string(snap.Payload))
	assert.True(t, snap.CapturedAt.Equal(second))

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dashboard").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSnapshot_RejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	require.Error(t, s.PutSnapshot(context.Background(), json.RawMessage(`{nope`)))
}

func TestSnapshot_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lighthouse.db")
	ctx := context.Background()

	s1 := New(path, Options{}, testLogger(t))
	require.NoError(t, s1.PutSnapshot(ctx, json.RawMessage(`{"x":1}`)))
	require.NoError(t, s1.Close())

	s2 := New(path, Options{}, testLogger(t))
	defer s2.Close()

	snap, found, err := s2.GetSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"x":1}`, string(snap.Payload))
}

func TestEnqueue_AssignsMonotonicIDsInOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	a1, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
	require.NoError(t, err)
	a2, err := s.EnqueueAction(ctx, ActionRating, json.RawMessage(`{"article_id":42,"rating":1}`))
	require.NoError(t, err)
	a3, err := s.EnqueueAction(ctx, ActionSettings, json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.Less(t, a1.ID, a2.ID)
	assert.Less(t, a2.ID, a3.ID)

	pending, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	assert.Equal(t, []ActionType{ActionRead, ActionRating, ActionSettings},
		[]ActionType{pending[0].Type, pending[1].Type, pending[2].Type})
	assert.Equal(t, a1.ID, pending[0].ID)
	assert.JSONEq(t, `{"article_id":42,"rating":1}`, string(pending[1].Payload))
}

func TestEnqueue_IDsNeverReused(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	a1, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
	require.NoError(t, err)

	_, err = s.DeleteActions(ctx, []int64{a1.ID})
	require.NoError(t, err)

	a2, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
	require.NoError(t, err)
	assert.Greater(t, a2.ID, a1.ID)
}

func TestEnqueue_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})

	_, err := s.EnqueueAction(context.Background(), ActionType("unread"), json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestEnqueue_QueueCapIsQuotaExceeded(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{MaxQueueSize: 2})
	ctx := context.Background()

	for range 2 {
		_, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
		require.NoError(t, err)
	}

	_, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://b"}`))
	require.ErrorIs(t, err, ErrStorageQuotaExceeded)

	pending, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "rejected action must not be stored")
}

func TestEnqueue_DatabaseFullIsQuotaExceeded(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{MaxStoreBytes: 32 * sqlitePageSize})

	big := `{"url":"https://example.com/` + strings.Repeat("a", 256*1024) + `"}`

	_, err := s.EnqueueAction(context.Background(), ActionRead, json.RawMessage(big))
	require.ErrorIs(t, err, ErrStorageQuotaExceeded)
}

func TestDeleteActions_ToleratesMissingIDs(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	a, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
	require.NoError(t, err)

	n, err := s.DeleteActions(ctx, []int64{a.ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteActions(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteActions(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteActions_LargeSetSpansChunks(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	ids := make([]int64, 0, deleteChunkSize+10)
	for range deleteChunkSize + 10 {
		a, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
		require.NoError(t, err)

		ids = append(ids, a.ID)
	}

	n, err := s.DeleteActions(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), n)

	pending, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPurgeActionsOlderThan(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	base := time.UnixMilli(1_700_000_000_000)

	s.nowFunc = func() time.Time { return base }
	old, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://old"}`))
	require.NoError(t, err)

	s.nowFunc = func() time.Time { return base.Add(48 * time.Hour) }
	fresh, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://fresh"}`))
	require.NoError(t, err)

	n, err := s.PurgeActionsOlderThan(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)
	assert.NotEqual(t, old.ID, pending[0].ID)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.True(t, stats.Oldest.IsZero())

	base := time.UnixMilli(1_700_000_000_000)
	s.nowFunc = func() time.Time { return base }

	for _, typ := range []ActionType{ActionRead, ActionRead, ActionRating} {
		_, err := s.EnqueueAction(ctx, typ, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[ActionRead])
	assert.Equal(t, 1, stats.ByType[ActionRating])
	assert.True(t, stats.Oldest.Equal(base))
}

func TestConcurrentEnqueueAndDelete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	const writers, perWriter = 4, 25

	var wg gosync.WaitGroup

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perWriter {
				_, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
				assert.NoError(t, err)
			}
		}()
	}

	// A concurrent drainer deleting whatever it sees.
	var drained int64

	wg.Add(1)

	go func() {
		defer wg.Done()

		for range 10 {
			pending, err := s.ListPendingActions(ctx)
			if !assert.NoError(t, err) {
				return
			}

			ids := make([]int64, len(pending))
			for i, a := range pending {
				ids[i] = a.ID
			}

			n, err := s.DeleteActions(ctx, ids)
			assert.NoError(t, err)

			drained += n
		}
	}()

	wg.Wait()

	pending, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), drained+int64(len(pending)),
		"every enqueued action is either drained exactly once or still pending")
}

// openRaw opens a second handle on the same file for assertions.
func openRaw(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestEnqueue_StoresMillisecondTimestamp(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx := context.Background()

	at := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	s.nowFunc = func() time.Time { return at }

	_, err := s.EnqueueAction(ctx, ActionRead, json.RawMessage(`{"url":"https://a"}`))
	require.NoError(t, err)

	var ts int64
	require.NoError(t, openRaw(t, s.Path()).QueryRowContext(ctx,
		"SELECT timestamp FROM actions").Scan(&ts))
	assert.Equal(t, at.UnixMilli(), ts)
}
