package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Trigger names why a pass ran.
type Trigger string

// Pass triggers.
const (
	TriggerStartup Trigger = "startup"
	TriggerOnline  Trigger = "online"
	TriggerPoll    Trigger = "poll"
	TriggerManual  Trigger = "manual"
)

// Syncer runs one pass. Satisfied by *Engine.
type Syncer interface {
	Sync(ctx context.Context) (*Report, error)
}

// WatchConfig holds the options for NewWatcher.
type WatchConfig struct {
	Syncer Syncer
	Logger *slog.Logger

	// Online delivers one value per offline-to-online transition.
	Online <-chan struct{}

	// Manual delivers one value per user-requested pass (SIGUSR1).
	Manual <-chan struct{}

	PollInterval time.Duration // 0 disables periodic passes
	MinInterval  time.Duration // minimum spacing between pass starts

	// Refresh re-fetches the dashboard snapshot. Called after a pass that
	// applied settings and after each online transition. Optional.
	Refresh func(ctx context.Context) error

	// OnReport observes every completed pass. Optional.
	OnReport func(Trigger, *Report)
}

// Watcher re-runs sync passes until its context ends: once at start, on
// every connectivity-regained event, on a poll interval, and on demand.
// Overlapping triggers share one pass, and pass starts are spaced by a
// rate limiter so a flapping connection cannot hammer the server.
type Watcher struct {
	syncer   Syncer
	logger   *slog.Logger
	online   <-chan struct{}
	manual   <-chan struct{}
	refresh  func(ctx context.Context) error
	onReport func(Trigger, *Report)

	flight  singleflight.Group
	limiter *rate.Limiter

	pollInterval atomic.Int64 // time.Duration
	pollReset    chan struct{}

	passes atomic.Int64
}

// NewWatcher creates a Watcher.
func NewWatcher(cfg *WatchConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		syncer:    cfg.Syncer,
		logger:    logger,
		online:    cfg.Online,
		manual:    cfg.Manual,
		refresh:   cfg.Refresh,
		onReport:  cfg.OnReport,
		limiter:   rate.NewLimiter(limitFor(cfg.MinInterval), 1),
		pollReset: make(chan struct{}, 1),
	}

	w.pollInterval.Store(int64(cfg.PollInterval))

	return w
}

func limitFor(minInterval time.Duration) rate.Limit {
	if minInterval <= 0 {
		return rate.Inf
	}

	return rate.Every(minInterval)
}

// SetIntervals applies new poll and minimum intervals, for config reload.
func (w *Watcher) SetIntervals(poll, minInterval time.Duration) {
	w.limiter.SetLimit(limitFor(minInterval))

	if time.Duration(w.pollInterval.Swap(int64(poll))) != poll {
		select {
		case w.pollReset <- struct{}{}:
		default:
		}
	}
}

// Passes returns how many passes have completed.
func (w *Watcher) Passes() int64 {
	return w.passes.Load()
}

// Run blocks until ctx is canceled, returning nil on clean shutdown.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch starting",
		slog.Duration("poll_interval", time.Duration(w.pollInterval.Load())),
		slog.Float64("max_passes_per_second", float64(w.limiter.Limit())),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Trigger(gctx, TriggerStartup)
		return nil
	})

	g.Go(func() error { return w.listen(gctx, w.online, TriggerOnline) })
	g.Go(func() error { return w.listen(gctx, w.manual, TriggerManual) })
	g.Go(func() error { return w.poll(gctx) })

	err := g.Wait()

	w.logger.Info("watch stopped", slog.Int64("passes", w.passes.Load()))

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// listen runs a pass for every value on ch. A nil channel never fires.
func (w *Watcher) listen(ctx context.Context, ch <-chan struct{}, trigger Trigger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}

			w.Trigger(ctx, trigger)

			if trigger == TriggerOnline {
				w.refreshDashboard(ctx, trigger)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	for {
		interval := time.Duration(w.pollInterval.Load())

		var tick <-chan time.Time

		var timer *time.Timer
		if interval > 0 {
			timer = time.NewTimer(interval)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-w.pollReset:
			stopTimer(timer)
		case <-tick:
			w.Trigger(ctx, TriggerPoll)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Trigger runs a pass, or joins one already in flight. It waits for the
// rate limiter first. The report is nil when the pass could not run.
func (w *Watcher) Trigger(ctx context.Context, trigger Trigger) *Report {
	v, err, shared := w.flight.Do("sync", func() (any, error) {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("sync: waiting for rate limiter: %w", err)
		}

		report, err := w.syncer.Sync(ctx)
		if err != nil {
			return nil, err
		}

		w.passes.Add(1)

		if w.onReport != nil {
			w.onReport(trigger, report)
		}

		if report.SettingsApplied() {
			w.refreshDashboard(ctx, trigger)
		}

		return report, nil
	})

	if shared {
		w.logger.Debug("sync trigger joined pass in flight", slog.String("trigger", string(trigger)))
	}

	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("sync pass failed",
				slog.String("trigger", string(trigger)),
				slog.String("error", err.Error()),
			)
		}

		return nil
	}

	return v.(*Report)
}

func (w *Watcher) refreshDashboard(ctx context.Context, trigger Trigger) {
	if w.refresh == nil {
		return
	}

	if err := w.refresh(ctx); err != nil {
		w.logger.Warn("dashboard refresh failed",
			slog.String("trigger", string(trigger)),
			slog.String("error", err.Error()),
		)
	}
}
