package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/lighthouse/internal/api"
	"github.com/tonimelisma/lighthouse/internal/apitest"
	"github.com/tonimelisma/lighthouse/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()

	s := store.New(path, store.Options{}, quietLogger())
	t.Cleanup(func() { s.Close() })

	return s
}

func TestCache_LoadBeforeSaveIsNoCache(t *testing.T) {
	t.Parallel()

	c := NewCache(openStore(t, filepath.Join(t.TempDir(), "lighthouse.db")))

	payload, _, err := c.Load(context.Background())
	require.ErrorIs(t, err, ErrNoCache)
	assert.Nil(t, payload)
}

func TestCache_EmptyObjectIsNotNoCache(t *testing.T) {
	t.Parallel()

	c := NewCache(openStore(t, filepath.Join(t.TempDir(), "lighthouse.db")))
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, json.RawMessage(`{}`)))

	payload, _, err := c.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(payload))
}

func TestCache_SurvivesRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lighthouse.db")
	ctx := context.Background()

	first := store.New(path, store.Options{}, quietLogger())
	require.NoError(t, NewCache(first).Save(ctx, json.RawMessage(`{"x":1}`)))
	require.NoError(t, first.Close())

	payload, capturedAt, err := NewCache(openStore(t, path)).Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(payload))
	assert.False(t, capturedAt.IsZero())
}

func TestCache_SaveOverwrites(t *testing.T) {
	t.Parallel()

	c := NewCache(openStore(t, filepath.Join(t.TempDir(), "lighthouse.db")))
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, json.RawMessage(`{"x":1}`)))
	require.NoError(t, c.Save(ctx, json.RawMessage(`{"x":2}`)))

	payload, _, err := c.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":2}`, string(payload))
}

func newLoader(t *testing.T) (*Loader, *Cache, *apitest.Server) {
	t.Helper()

	srv := apitest.New(t)
	client := api.NewClient(srv.URL, nil, nil, quietLogger(), "")
	client.SetMaxRetries(0)

	cache := NewCache(openStore(t, filepath.Join(t.TempDir(), "lighthouse.db")))

	return NewLoader(client, cache, false, quietLogger()), cache, srv
}

func TestLoader_LiveSavesSnapshot(t *testing.T) {
	t.Parallel()

	l, cache, _ := newLoader(t)
	ctx := context.Background()

	res, err := l.Load(ctx)
	require.NoError(t, err)
	assert.True(t, res.Live)
	assert.JSONEq(t, apitest.DefaultDashboard, string(res.Payload))

	cached, _, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, apitest.DefaultDashboard, string(cached))
}

func TestLoader_FallsBackToCache(t *testing.T) {
	t.Parallel()

	l, _, srv := newLoader(t)
	ctx := context.Background()

	_, err := l.Load(ctx)
	require.NoError(t, err)

	srv.Fail(http.MethodGet, apitest.PathDashboard, http.StatusBadGateway)

	res, err := l.Load(ctx)
	require.NoError(t, err)
	assert.False(t, res.Live)
	require.ErrorIs(t, res.LiveErr, api.ErrServerError)
	assert.JSONEq(t, apitest.DefaultDashboard, string(res.Payload))
	assert.False(t, res.CapturedAt.IsZero())
}

func TestLoader_NoCacheAndOffline(t *testing.T) {
	t.Parallel()

	l, _, srv := newLoader(t)
	srv.Fail(http.MethodGet, apitest.PathDashboard, http.StatusServiceUnavailable)

	_, err := l.Load(context.Background())
	require.ErrorIs(t, err, ErrNoCache)
	assert.ErrorIs(t, err, api.ErrServerError)
}

func TestLoader_IncludeReadQuery(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	client := api.NewClient(srv.URL, nil, nil, quietLogger(), "")
	l := NewLoader(client, NewCache(openStore(t, filepath.Join(t.TempDir(), "x.db"))), true, quietLogger())

	require.NoError(t, l.Refresh(context.Background()))

	reqs := srv.Requests(http.MethodGet, apitest.PathDashboard)
	require.Len(t, reqs, 1)
	assert.Equal(t, "include_read=true", reqs[0].Query)
}

type failingSnapshots struct{}

func (failingSnapshots) PutSnapshot(context.Context, json.RawMessage) error {
	return store.ErrStorageQuotaExceeded
}

func (failingSnapshots) GetSnapshot(context.Context) (*store.Snapshot, bool, error) {
	return nil, false, store.ErrStorageUnavailable
}

func TestLoader_SaveFailureStillReturnsLive(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	client := api.NewClient(srv.URL, nil, nil, quietLogger(), "")
	l := NewLoader(client, NewCache(failingSnapshots{}), false, quietLogger())

	res, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Live)

	require.ErrorIs(t, l.Refresh(context.Background()), store.ErrStorageQuotaExceeded)
}

func TestLoader_CacheReadFailure(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.Fail(http.MethodGet, apitest.PathDashboard, http.StatusNotFound)

	client := api.NewClient(srv.URL, nil, nil, quietLogger(), "")
	l := NewLoader(client, NewCache(failingSnapshots{}), false, quietLogger())

	_, err := l.Load(context.Background())
	require.ErrorIs(t, err, store.ErrStorageUnavailable)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.False(t, errors.Is(err, ErrNoCache))
}
