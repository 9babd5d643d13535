package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Replace atomically replaces the contents of the file at path with
// whatever write produces. The new contents are written to a temporary
// file in the same directory first, so a failure inside write leaves the
// target untouched. The swap itself renames the existing file to a .bak
// sibling, renames the temporary file into place, and then removes the
// .bak file. If the final rename fails, the .bak file is restored to the
// target path before the error is returned.
//
// Replace never leaves the target path observable in a half-written state.
func Replace(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		// Clean up the temporary file and propagate; the target file has
		// not been touched at this point.
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write replacement contents: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	return swap(path, tmpPath)
}

// swap moves tmpPath into place at path, keeping the previous contents in
// a .bak sibling until the move is known to have succeeded.
func swap(path, tmpPath string) (err error) {
	bakPath := path + ".bak"

	hadPrevious := false
	if _, statErr := os.Stat(path); statErr == nil {
		hadPrevious = true
		if renameErr := os.Rename(path, bakPath); renameErr != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("failed to move previous file aside: %w", renameErr)
		}
	} else if !os.IsNotExist(statErr) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to stat target file: %w", statErr)
	}

	defer func() {
		if !hadPrevious {
			return
		}
		// On success the backup is deleted. On a failed final rename the
		// target path is gone, so the backup is restored instead.
		if _, statErr := os.Stat(path); statErr == nil {
			_ = os.Remove(bakPath)
		} else {
			_ = os.Rename(bakPath, path)
		}
	}()

	if renameErr := os.Rename(tmpPath, path); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move replacement into place: %w", renameErr)
	}

	return nil
}
