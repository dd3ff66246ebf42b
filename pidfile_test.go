package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePID(t *testing.T, pid string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lighthouse.pid")
	require.NoError(t, os.WriteFile(path, []byte(pid+"\n"), 0o644))

	return path
}

func TestWritePIDFile_LifeCycle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "nested", "lighthouse.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// A second daemon on the same state directory is refused.
	second, err := writePIDFile(path)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.Contains(t, err.Error(), "already running")

	cleanup()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Released: the next daemon can claim it.
	again, err := writePIDFile(path)
	require.NoError(t, err)
	again()
}

func TestWritePIDFile_OverwritesStaleContent(t *testing.T) {
	t.Parallel()

	path := writePID(t, "999999999999")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	defer cleanup()

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestWritePIDFile_EmptyPath(t *testing.T) {
	t.Parallel()

	cleanup, err := writePIDFile("")
	require.Error(t, err)
	assert.Nil(t, cleanup)
	assert.Contains(t, err.Error(), "empty")
}

func TestReadPIDFile(t *testing.T) {
	t.Parallel()

	pid, err := readPIDFile(writePID(t, " 12345 "))
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	_, err = readPIDFile(writePID(t, "not-a-pid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID")

	_, err = readPIDFile(filepath.Join(t.TempDir(), "missing.pid"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindDaemon(t *testing.T) {
	t.Parallel()

	proc, err := findDaemon(writePID(t, strconv.Itoa(os.Getpid())))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), proc.Pid)

	_, err = findDaemon(filepath.Join(t.TempDir(), "missing.pid"))
	require.ErrorIs(t, err, errDaemonNotRunning)
	assert.Contains(t, err.Error(), "no PID file")

	// PID 999999999 is almost certainly not a running process.
	stale := writePID(t, "999999999")

	_, err = findDaemon(stale)
	require.ErrorIs(t, err, errDaemonNotRunning)
	assert.Contains(t, err.Error(), "stale PID file removed")

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr))

	assert.False(t, daemonRunning(stale))
}

func TestSignalDaemon_SendsToCurrentProcess(t *testing.T) {
	// Trap the signals so they don't kill the test process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1)

	defer signal.Stop(sigCh)

	path := writePID(t, strconv.Itoa(os.Getpid()))

	for _, want := range []syscall.Signal{syscall.SIGHUP, syscall.SIGUSR1} {
		require.NoError(t, signalDaemon(path, want))
		assert.Equal(t, want, <-sigCh)
	}

	err := signalDaemon(filepath.Join(t.TempDir(), "missing.pid"), syscall.SIGUSR1)
	assert.ErrorIs(t, err, errDaemonNotRunning)
}
