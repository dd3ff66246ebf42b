package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Fetcher loads the live dashboard. Satisfied by *api.Client.
type Fetcher interface {
	FetchDashboard(ctx context.Context, includeRead bool) (json.RawMessage, error)
}

// Result is a dashboard ready to render.
type Result struct {
	Payload    json.RawMessage
	Live       bool      // false: served from cache
	CapturedAt time.Time // when the payload was fetched from the server
	LiveErr    error     // why the live fetch failed, when Live is false
}

// Loader fetches the dashboard live, falling back to the cache.
type Loader struct {
	fetcher     Fetcher
	cache       *Cache
	logger      *slog.Logger
	includeRead bool
	nowFunc     func() time.Time
}

// NewLoader creates a Loader.
func NewLoader(fetcher Fetcher, cache *Cache, includeRead bool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		fetcher:     fetcher,
		cache:       cache,
		logger:      logger,
		includeRead: includeRead,
		nowFunc:     time.Now,
	}
}

// Load fetches the live dashboard and saves it. When the fetch fails it
// returns the cached payload instead, marked stale. With neither, the
// error matches both ErrNoCache and the live failure.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	payload, liveErr := l.fetcher.FetchDashboard(ctx, l.includeRead)
	if liveErr == nil {
		if err := l.cache.Save(ctx, payload); err != nil {
			// The live payload is still good to show.
			l.logger.Warn("dashboard snapshot not saved",
				slog.String("error", err.Error()),
			)
		}

		return &Result{Payload: payload, Live: true, CapturedAt: l.nowFunc()}, nil
	}

	l.logger.Info("live dashboard unavailable, using cache",
		slog.String("error", liveErr.Error()),
	)

	cached, capturedAt, err := l.cache.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCache) {
			return nil, errors.Join(err, liveErr)
		}

		return nil, fmt.Errorf("%w (live fetch: %w)", err, liveErr)
	}

	return &Result{Payload: cached, CapturedAt: capturedAt, LiveErr: liveErr}, nil
}

// Refresh fetches and saves the live dashboard without a cache fallback.
// The watch loop calls it after connectivity returns.
func (l *Loader) Refresh(ctx context.Context) error {
	payload, err := l.fetcher.FetchDashboard(ctx, l.includeRead)
	if err != nil {
		return err
	}

	return l.cache.Save(ctx, payload)
}
