package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplace_CreatesNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")

	err := Replace(path, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestReplace_ReplacesExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := Replace(path, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	// The backup must not outlive a successful replacement.
	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestReplace_WriteFailureLeavesTargetUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0o644))

	injected := errors.New("serialization blew up")
	err := Replace(path, func(w io.Writer) error {
		// Partial write before the failure, to prove partial output never
		// reaches the target.
		if _, werr := w.Write([]byte("garbage")); werr != nil {
			return werr
		}
		return injected
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, injected)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(got))

	// No temporary or backup files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

func TestReplace_WriteFailureWithNoExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	err := Replace(path, func(w io.Writer) error {
		return errors.New("boom")
	})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed write must not leave files behind")
}

func TestSwap_FinalRenameFailureRestoresBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	// Removing the temp file before the swap forces the final rename to
	// fail after the original has already been moved to .bak.
	tmpPath := filepath.Join(dir, "store.json.tmp-injected")
	require.NoError(t, os.WriteFile(tmpPath, []byte("replacement"), 0o644))
	require.NoError(t, os.Remove(tmpPath))

	err := swap(path, tmpPath)
	require.Error(t, err)

	// The original contents must have been restored from the backup.
	got, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, "original", string(got))

	_, serr := os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(serr), "backup should be consumed by the restore")
}

func TestReplace_MissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope", "store.json")
	err := Replace(path, func(w io.Writer) error { return nil })
	assert.Error(t, err)
}
