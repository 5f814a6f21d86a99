package sys

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/INLOpen/stampdb/core"
)

// ShadowSuffix names the working copy that all mutations go through.
const ShadowSuffix = ".tmp"

// renameImpl is swapped in tests to simulate a failing rename.
var renameImpl = os.Rename

// SetRenameFunc replaces the rename used by PublishShadow and Rename and
// returns a function restoring the previous one.
func SetRenameFunc(fn func(oldpath, newpath string) error) (restore func()) {
	prev := renameImpl
	renameImpl = fn
	return func() { renameImpl = prev }
}

// ShadowPath returns the shadow file path for a primary data file.
func ShadowPath(path string) string {
	return path + ShadowSuffix
}

// CreateShadow overwrites the shadow of path with a byte-for-byte copy of
// the primary file and syncs it.
func CreateShadow(path string) error {
	if err := CopyFile(path, ShadowPath(path)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	return nil
}

// CreateEmptyShadow truncates (or creates) the shadow of path and returns
// it open for writing. The caller syncs and closes it before publishing.
func CreateEmptyShadow(path string) (FileHandle, error) {
	f, err := Create(ShadowPath(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	return f, nil
}

// PublishShadow renames the shadow over the primary file, retrying up to
// maxRetries additional times with a fixed backoff. A failure leaves the
// primary file untouched.
func PublishShadow(path string, maxRetries int, backoff time.Duration) error {
	shadow := ShadowPath(path)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 && backoff > 0 {
			time.Sleep(backoff)
		}
		if lastErr = renameImpl(shadow, path); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", core.ErrShadowPublish, path, maxRetries+1, lastErr)
}

// RemoveShadow deletes a leftover shadow file, ignoring a missing one.
func RemoveShadow(path string) error {
	if err := os.Remove(ShadowPath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Rename moves oldpath to newpath. When the rename fails (for example across
// devices) it falls back to copy then remove.
func Rename(oldpath, newpath string) error {
	if err := renameImpl(oldpath, newpath); err == nil {
		return nil
	} else if _, statErr := os.Stat(oldpath); statErr != nil {
		return err
	}
	if err := CopyFile(oldpath, newpath); err != nil {
		return fmt.Errorf("rename fallback copy %s -> %s: %w", oldpath, newpath, err)
	}
	return os.Remove(oldpath)
}

// CopyFile copies src to dst, truncating dst, and syncs the result.
func CopyFile(src, dst string) error {
	in, err := Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	out, err := Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	return out.Close()
}
