package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o700
)

// errDaemonNotRunning means no live sync --watch owns the PID file.
var errDaemonNotRunning = errors.New("no running sync --watch daemon")

// writePIDFile claims the daemon PID file at path. The file stays locked
// with flock for as long as the daemon runs, so a second "sync --watch"
// against the same state directory fails instead of double-delivering.
// The returned cleanup removes the file and drops the lock.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty: cannot determine state directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	fail := func(err error) (func(), error) {
		f.Close()
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fail(fmt.Errorf("another sync --watch is already running (could not lock %s)", path))
	}

	// The lock holder owns the contents; stale text from a crashed daemon
	// is overwritten.
	if err := f.Truncate(0); err != nil {
		return fail(fmt.Errorf("truncating PID file: %w", err))
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fail(fmt.Errorf("writing PID file: %w", err))
	}

	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("syncing PID file: %w", err))
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile returns the PID recorded at path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// findDaemon returns the live process named by the PID file. A PID file
// whose process has exited is removed. Errors wrap errDaemonNotRunning
// when there is no daemon.
func findDaemon(pidPath string) (*os.Process, error) {
	pid, err := readPIDFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w (no PID file at %s)", errDaemonNotRunning, pidPath)
	}

	if err != nil {
		return nil, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("finding process %d: %w", pid, err)
	}

	// Signal 0 only checks that the process exists.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return nil, fmt.Errorf("%w (PID %d is gone, stale PID file removed)", errDaemonNotRunning, pid)
	}

	return proc, nil
}

// signalDaemon sends sig to the running daemon: SIGUSR1 asks for a sync
// pass, SIGHUP for a config reload.
func signalDaemon(pidPath string, sig syscall.Signal) error {
	proc, err := findDaemon(pidPath)
	if err != nil {
		return err
	}

	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("sending %s to daemon (PID %d): %w", sig, proc.Pid, err)
	}

	return nil
}
