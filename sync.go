package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/lighthouse/internal/config"
	"github.com/tonimelisma/lighthouse/internal/connectivity"
	isync "github.com/tonimelisma/lighthouse/internal/sync"
)

// errSyncIncomplete means at least one group stayed queued after a pass.
var errSyncIncomplete = errors.New("sync incomplete")

// websocketPath is where the server accepts connectivity websockets.
const websocketPath = "/api/ws"

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued actions to the server",
		Long: `Run one sync pass: send queued reads, ratings, and the latest settings
document to the server, and clear what the server accepted. Anything that
fails stays queued for the next pass.

With --watch, run as a daemon: sync at start, whenever the server becomes
reachable again, every poll_interval, and on SIGUSR1. SIGHUP and edits to
the config file reload poll_interval, min_sync_interval, and max_action_age.
Use --trigger to ask a running daemon for an immediate pass.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("watch", false, "keep running and sync whenever the server is reachable")
	cmd.Flags().Bool("trigger", false, "ask the running sync --watch daemon to sync now")
	cmd.MarkFlagsMutuallyExclusive("watch", "trigger")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if trigger, _ := cmd.Flags().GetBool("trigger"); trigger {
		if err := signalDaemon(cc.Cfg.PIDPath(), syscall.SIGUSR1); err != nil {
			return err
		}

		cc.Statusf("Asked the running daemon to sync\n")

		return nil
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return runWatch(cmd.Context(), cc)
	}

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	report, err := sess.Engine().Sync(cmd.Context())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if err := printJSON(cc.Out, newReportOutput(report)); err != nil {
			return err
		}
	} else {
		printReport(cc, report)
	}

	return reportError(report)
}

// syncIfRequested runs one pass when the command's --sync flag is set.
// Delivery failures are reported but are not command failures: the
// action is already safely queued.
func syncIfRequested(cmd *cobra.Command, cc *CLIContext, sess *Session) error {
	if want, _ := cmd.Flags().GetBool("sync"); !want {
		return nil
	}

	report, err := sess.Engine().Sync(cmd.Context())
	if err != nil {
		return err
	}

	if failed := report.FailedGroups(); failed > 0 {
		cc.Statusf("Server unreachable, actions stay queued for the next sync\n")
		return nil
	}

	cc.Statusf("Delivered %d queued action(s)\n", report.Deleted())

	return nil
}

// reportError returns errSyncIncomplete wrapped with the failed group count,
// or nil when every group was delivered.
func reportError(report *isync.Report) error {
	failed := report.FailedGroups()
	if failed == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d of %d group(s) left queued", errSyncIncomplete, failed, pendingGroups(report))
}

func pendingGroups(report *isync.Report) int {
	n := 0

	for _, g := range report.Groups {
		if g.Pending > 0 {
			n++
		}
	}

	return n
}

// printReport writes a per-group table of the pass to stdout.
func printReport(cc *CLIContext, report *isync.Report) {
	if report.Purged > 0 {
		cc.Statusf("Dropped %d action(s) older than max_action_age\n", report.Purged)
	}

	if report.Empty() {
		fmt.Fprintln(cc.Out, "Nothing to sync")
		return
	}

	rows := make([][]string, 0, len(report.Groups))

	for _, g := range report.Groups {
		if g.Pending == 0 {
			continue
		}

		rows = append(rows, []string{
			string(g.Type),
			strconv.Itoa(g.Pending),
			strconv.FormatInt(g.Deleted, 10),
			groupStatus(g),
		})
	}

	printTable(cc.Out, []string{"TYPE", "PENDING", "CLEARED", "STATUS"}, rows)
}

func groupStatus(g isync.GroupResult) string {
	var parts []string

	switch {
	case g.Failed():
		parts = append(parts, "queued: "+g.Err.Error())
	case g.Attempted:
		parts = append(parts, "delivered")
	default:
		parts = append(parts, "not sent")
	}

	if len(g.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("%d unreadable", len(g.Skipped)))
	}

	if g.RefreshErr != nil {
		parts = append(parts, "refresh failed")
	}

	return strings.Join(parts, ", ")
}

// reportOutput is the JSON form of a pass.
type reportOutput struct {
	StartedAt  string        `json:"started_at"`
	DurationMS int64         `json:"duration_ms"`
	Purged     int64         `json:"purged"`
	Groups     []groupOutput `json:"groups"`
}

type groupOutput struct {
	Type                string  `json:"type"`
	Pending             int     `json:"pending"`
	Sent                int     `json:"sent"`
	Cleared             int64   `json:"cleared"`
	Skipped             []int64 `json:"skipped,omitempty"`
	Error               string  `json:"error,omitempty"`
	RefreshError        string  `json:"refresh_error,omitempty"`
	ConsecutiveFailures int     `json:"consecutive_failures,omitempty"`
}

func newReportOutput(report *isync.Report) reportOutput {
	out := reportOutput{
		StartedAt:  report.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		DurationMS: report.Duration.Milliseconds(),
		Purged:     report.Purged,
		Groups:     make([]groupOutput, 0, len(report.Groups)),
	}

	for _, g := range report.Groups {
		gout := groupOutput{
			Type:                string(g.Type),
			Pending:             g.Pending,
			Sent:                g.Sent,
			Cleared:             g.Deleted,
			Skipped:             g.Skipped,
			ConsecutiveFailures: g.ConsecutiveFailures,
		}

		if g.Err != nil {
			gout.Error = g.Err.Error()
		}

		if g.RefreshErr != nil {
			gout.RefreshError = g.RefreshErr.Error()
		}

		out.Groups = append(out.Groups, gout)
	}

	return out
}

// runWatch runs the sync daemon until SIGINT/SIGTERM.
func runWatch(parent context.Context, cc *CLIContext) error {
	logger := cc.Logger
	cfg := cc.Cfg

	cleanup, err := writePIDFile(cfg.PIDPath())
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(parent, logger)

	sess := NewSession(cfg, logger)
	defer sess.Close()

	// Without storage there is nothing to deliver; fail now rather than
	// on the first pass.
	if err := sess.Store.Open(ctx); err != nil {
		return err
	}

	engine := sess.Engine()
	loader := sess.Loader(cfg.IncludeRead)

	monitor := connectivity.New(&connectivity.Config{
		Prober:       sess.Client,
		Interval:     cfg.HealthIntervalDuration(),
		Logger:       logger,
		WebsocketURL: websocketURL(cfg),
		Header:       authHeader(cfg),
	})

	watcher := isync.NewWatcher(&isync.WatchConfig{
		Syncer:       engine,
		Logger:       logger,
		Online:       monitor.Online(),
		Manual:       notifySignal(ctx, syscall.SIGUSR1),
		PollInterval: cfg.PollIntervalDuration(),
		MinInterval:  cfg.MinSyncIntervalDuration(),
		Refresh:      loader.Refresh,
		OnReport:     func(trigger isync.Trigger, r *isync.Report) { logReport(logger, trigger, r) },
	})

	holder := config.NewHolder(cfg, cc.CfgPath)
	env := config.ReadEnvOverrides()
	cli := cliOverrides(cc.Flags)
	fixup := func(c *config.Config) { config.ApplyOverrides(c, env, cli) }

	apply := func(reloadErr error) {
		if reloadErr != nil {
			return
		}

		applyReload(holder.Config(), cfg, engine, watcher, logger)
	}

	reloads := notifySignal(ctx, syscall.SIGHUP)

	logger.Info("sync daemon started",
		slog.String("server", cfg.ServerURL),
		slog.String("state_dir", cfg.StateDir),
		slog.Bool("websocket", cfg.Websocket),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return config.Watch(gctx, holder, fixup, apply, logger) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reloads:
				logger.Info("received SIGHUP, reloading config")

				err := config.Reload(holder, fixup)
				if err != nil {
					logger.Warn("config reload failed, keeping previous config",
						slog.String("error", err.Error()),
					)
				}

				apply(err)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("sync daemon stopped", slog.Int64("passes", watcher.Passes()))

	return nil
}

// applyReload pushes the hot-reloadable settings into the running daemon.
// Settings that shape the store, the client, or the monitor need a restart.
func applyReload(next, started *config.Config, engine *isync.Engine, watcher *isync.Watcher, logger *slog.Logger) {
	engine.SetMaxActionAge(next.MaxActionAgeDuration())
	watcher.SetIntervals(next.PollIntervalDuration(), next.MinSyncIntervalDuration())

	logger.Info("applied reloaded config",
		slog.Duration("poll_interval", next.PollIntervalDuration()),
		slog.Duration("min_sync_interval", next.MinSyncIntervalDuration()),
		slog.Duration("max_action_age", next.MaxActionAgeDuration()),
	)

	if restartNeeded(next, started) {
		logger.Warn("some changed settings take effect only after restarting sync --watch")
	}
}

func restartNeeded(next, started *config.Config) bool {
	return next.ServerConfig != started.ServerConfig ||
		next.QueueConfig.StateDir != started.QueueConfig.StateDir ||
		next.MaxQueueSize != started.MaxQueueSize ||
		next.MaxStoreSize != started.MaxStoreSize ||
		next.HealthInterval != started.HealthInterval ||
		next.Websocket != started.Websocket ||
		next.WebsocketURL != started.WebsocketURL ||
		next.NetworkConfig != started.NetworkConfig ||
		next.LoggingConfig != started.LoggingConfig
}

// websocketURL returns the connectivity websocket address, or "" to poll
// /api/health instead. Without an explicit websocket_url the address is
// derived from server_url.
func websocketURL(cfg *config.Config) string {
	if !cfg.Websocket {
		return ""
	}

	if cfg.WebsocketURL != "" {
		return cfg.WebsocketURL
	}

	base := strings.TrimRight(cfg.ServerURL, "/")

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return base + websocketPath
}

// authHeader carries api_token on the websocket handshake.
func authHeader(cfg *config.Config) http.Header {
	if cfg.APIToken == "" {
		return nil
	}

	return http.Header{"Authorization": []string{"Bearer " + cfg.APIToken}}
}

// logReport records a completed daemon pass.
func logReport(logger *slog.Logger, trigger isync.Trigger, report *isync.Report) {
	if report.Empty() {
		logger.Debug("sync pass found nothing to send", slog.String("trigger", string(trigger)))
		return
	}

	level := slog.LevelInfo
	if report.FailedGroups() > 0 {
		level = slog.LevelWarn
	}

	logger.Log(context.Background(), level, "sync pass complete",
		slog.String("trigger", string(trigger)),
		slog.Int64("cleared", report.Deleted()),
		slog.Int("failed_groups", report.FailedGroups()),
		slog.Int64("purged", report.Purged),
		slog.Duration("duration", report.Duration),
	)
}
