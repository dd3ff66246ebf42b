package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// healthTimeout bounds the reachability probe of "status".
const healthTimeout = 5 * time.Second

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server reachability, queue backlog, and snapshot age",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

// statusOutput is the JSON form of "status".
type statusOutput struct {
	Server        string `json:"server"`
	Reachable     bool   `json:"reachable"`
	ServerError   string `json:"server_error,omitempty"`
	DeviceID      string `json:"device_id"`
	Queued        int    `json:"queued"`
	SnapshotAt    string `json:"snapshot_at,omitempty"`
	DaemonRunning bool   `json:"daemon_running"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	stats, err := sess.Store.Stats(ctx)
	if err != nil {
		return err
	}

	snap, haveSnap, err := sess.Store.GetSnapshot(ctx)
	if err != nil {
		return err
	}

	out := statusOutput{
		Server:        sess.Client.BaseURL(),
		DeviceID:      sess.Identity.DeviceID(),
		Queued:        stats.Total,
		DaemonRunning: daemonRunning(cc.Cfg.PIDPath()),
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	healthErr := sess.Client.Health(probeCtx)
	cancel()

	out.Reachable = healthErr == nil
	if healthErr != nil {
		out.ServerError = healthErr.Error()
	}

	if haveSnap {
		out.SnapshotAt = snap.CapturedAt.UTC().Format(time.RFC3339)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	reach := "reachable"
	if !out.Reachable {
		reach = "unreachable (" + out.ServerError + ")"
	}

	fmt.Fprintf(cc.Out, "Server:   %s, %s\n", out.Server, reach)
	fmt.Fprintf(cc.Out, "Device:   %s\n", out.DeviceID)
	fmt.Fprintf(cc.Out, "Queued:   %d action(s)\n", out.Queued)

	if haveSnap {
		fmt.Fprintf(cc.Out, "Snapshot: %s\n", formatAge(snap.CapturedAt, time.Now()))
	} else {
		fmt.Fprintf(cc.Out, "Snapshot: none\n")
	}

	daemon := "not running"
	if out.DaemonRunning {
		daemon = "running"
	}

	fmt.Fprintf(cc.Out, "Daemon:   %s\n", daemon)

	return nil
}

// daemonRunning reports whether the PID file names a live process.
func daemonRunning(pidPath string) bool {
	_, err := findDaemon(pidPath)

	return err == nil
}

func newDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show this device's identifier",
		Long: `Print the identifier attached to read and rating batches sent from this
device. It is generated on first use and kept in the state directory.`,
		Args: cobra.NoArgs,
		RunE: runDevice,
	}
}

func runDevice(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	sess := NewSession(cc.Cfg, cc.Logger)
	defer sess.Close()

	id := sess.Identity.DeviceID()

	if cc.Flags.JSON {
		return printJSON(cc.Out, map[string]string{"device_id": id, "path": sess.Identity.Path()})
	}

	fmt.Fprintln(cc.Out, id)

	return nil
}
