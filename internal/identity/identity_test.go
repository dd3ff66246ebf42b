package identity

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeviceID_GeneratesAndPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "device.json")

	id := New(path, quietLogger()).DeviceID()
	assert.True(t, strings.HasPrefix(id, idPrefix))
	assert.Len(t, id, len(idPrefix)+idLength)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), id)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerms), info.Mode().Perm())
}

func TestDeviceID_StableAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.json")

	first := New(path, quietLogger()).DeviceID()
	second := New(path, quietLogger()).DeviceID()

	assert.Equal(t, first, second)
}

func TestDeviceID_PreservesOtherKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark"}`), filePerms))

	New(path, quietLogger()).DeviceID()

	values, err := readValues(path)
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(values["theme"]))
	assert.NotEmpty(t, storedID(values))
}

func TestDeviceID_NonStringValuesKeepExistingID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"device_id":"device-abc123def456","installed_at":1700000000,"tags":["x"]}`), filePerms))

	assert.Equal(t, "device-abc123def456", New(path, quietLogger()).DeviceID())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "installed_at", "file left untouched")
}

func TestDeviceID_RewriteKeepsNonStringKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"device_id":42,"installed_at":1700000000,"tags":["x"],"beta":true}`), filePerms))

	id := New(path, quietLogger()).DeviceID()
	assert.True(t, strings.HasPrefix(id, idPrefix))

	values, err := readValues(path)
	require.NoError(t, err)
	assert.Equal(t, id, storedID(values))
	assert.JSONEq(t, `1700000000`, string(values["installed_at"]))
	assert.JSONEq(t, `["x"]`, string(values["tags"]))
	assert.JSONEq(t, `true`, string(values["beta"]))
}

func TestDeviceID_ReadsExistingValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"device_id":"device-abc"}`), filePerms))

	assert.Equal(t, "device-abc", New(path, quietLogger()).DeviceID())
}

func TestDeviceID_CorruptFileIsReplaced(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), filePerms))

	id := New(path, quietLogger()).DeviceID()
	require.NotEmpty(t, id)

	assert.Equal(t, id, New(path, quietLogger()).DeviceID())
}

func TestDeviceID_EphemeralWhenUnwritable(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), filePerms))

	ident := New(filepath.Join(blocker, "device.json"), quietLogger())

	id := ident.DeviceID()
	require.NotEmpty(t, id)

	// Stable for the life of the process even though nothing was persisted.
	assert.Equal(t, id, ident.DeviceID())
}

func TestDeviceID_ConcurrentCallersAgree(t *testing.T) {
	t.Parallel()

	ident := New(filepath.Join(t.TempDir(), "device.json"), quietLogger())

	const callers = 8

	ids := make([]string, callers)

	var wg gosync.WaitGroup
	for n := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			ids[n] = ident.DeviceID()
		}()
	}

	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGenerate_Distinct(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)

	for range 100 {
		id := generate()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
