package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/lighthouse/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServerURL  string
	flagStateDir   string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that must run even when the config
// file is broken, such as "config init" and "config set".
const skipConfigAnnotation = "skipConfig"

// logFilePermissions keeps log files private to the owner.
const logFilePermissions = 0o600

// CLIFlags is the parsed form of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	ServerURL  string
	StateDir   string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries what every command needs: the resolved config, the
// logger built from it, and the output streams. It is attached to the
// command's context by the root pre-run.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
	Out     io.Writer
	Err     io.Writer

	closeLog func() error
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext attached by the root pre-run.
// Panics if absent, which is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("BUG: CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lighthouse",
		Short: "Offline-first Lighthouse client",
		Long: `Record reads, ratings, and settings changes for a Lighthouse news
server while offline, and deliver them when the server is reachable.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main prints errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupCLIContext(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			if cc.closeLog != nil {
				return cc.closeLog()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Lighthouse server URL (overrides server_url)")
	cmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "directory for the offline queue and device identity")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newReadCmd())
	cmd.AddCommand(newRateCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newDashboardCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDeviceCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// setupCLIContext resolves config, builds the logger, and attaches the
// CLIContext to cmd. Commands annotated with skipConfigAnnotation get the
// config path and defaults only.
func setupCLIContext(cmd *cobra.Command) error {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		ServerURL:  flagServerURL,
		StateDir:   flagStateDir,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	cc := &CLIContext{
		Flags: flags,
		Out:   cmd.OutOrStdout(),
		Err:   cmd.ErrOrStderr(),
	}

	env := config.ReadEnvOverrides()
	cli := cliOverrides(flags)

	if cmd.Annotations[skipConfigAnnotation] == "true" {
		cc.Cfg = config.DefaultConfig()
		cc.CfgPath = config.ResolveConfigPath(env, cli)
	} else {
		cfg, path, err := config.Resolve(env, cli)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg = cfg
		cc.CfgPath = path
	}

	logger, closeLog, err := buildLogger(cc.Cfg, flags, cc.Err)
	if err != nil {
		return err
	}

	cc.Logger = logger
	cc.closeLog = closeLog

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

	return nil
}

func cliOverrides(flags CLIFlags) config.CLIOverrides {
	return config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		ServerURL:  flags.ServerURL,
		StateDir:   flags.StateDir,
	}
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. Logs go to log_file
// when set, else to stderr. The returned func closes the log file.
func buildLogger(cfg *config.Config, flags CLIFlags, stderr io.Writer) (*slog.Logger, func() error, error) {
	level := logLevel(cfg.LogLevel)

	// CLI flags override config (highest priority).
	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	if cfg.LogFile == "" {
		handler := newLogHandler(stderr, cfg.LogFormat, isTerminal(stderr), level)

		return slog.New(handler), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return slog.New(newLogHandler(f, cfg.LogFormat, false, level)), f.Close, nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogHandler picks text or JSON output. "auto" means text for a
// terminal and JSON for anything else (files, pipes, journald).
func newLogHandler(w io.Writer, format string, terminal bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch {
	case format == "text", format == "auto" && terminal:
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
