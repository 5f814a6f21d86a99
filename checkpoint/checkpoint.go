// Package checkpoint publishes changes to a data file through its shadow
// copy. Every function either replaces the primary file with a complete new
// version or leaves it untouched.
package checkpoint

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/INLOpen/stampdb/codec"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/sys"
)

// Options controls how a shadow is published.
type Options struct {
	// MaxRetries is the number of extra rename attempts after the first.
	MaxRetries int
	// Backoff is the fixed wait between rename attempts.
	Backoff time.Duration
}

// DefaultOptions returns five retries with a 50ms backoff.
func DefaultOptions() Options {
	return Options{MaxRetries: 5, Backoff: 50 * time.Millisecond}
}

// AppendRecords refreshes the shadow from the primary file, appends records
// to the end of the shadow and publishes it. headers are written first when
// the file is empty. A missing trailing newline in the existing file is
// repaired before the first appended row.
func AppendRecords(path string, headers []string, records []core.Record, opts Options) error {
	if err := sys.CreateShadow(path); err != nil {
		return err
	}

	shadowPath := sys.ShadowPath(path)
	file, err := sys.OpenFile(shadowPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("%w: failed to open shadow %s: %v", core.ErrShadowCreate, shadowPath, err)
	}

	if err := appendTo(file, headers, records); err != nil {
		file.Close()
		return fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("%w: failed to sync shadow: %v", core.ErrShadowCreate, err)
	}
	// Close before renaming, Windows refuses to replace an open file.
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: failed to close shadow before publish: %v", core.ErrShadowCreate, err)
	}

	return sys.PublishShadow(path, opts.MaxRetries, opts.Backoff)
}

func appendTo(file sys.FileHandle, headers []string, records []core.Record) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat shadow: %w", err)
	}

	w := codec.NewWriter(file)
	if info.Size() == 0 {
		if err := w.WriteHeader(headers); err != nil {
			return err
		}
	} else {
		last := make([]byte, 1)
		if _, err := file.Seek(-1, io.SeekEnd); err != nil {
			return fmt.Errorf("failed to seek shadow: %w", err)
		}
		if _, err := io.ReadFull(file, last); err != nil {
			return fmt.Errorf("failed to read shadow tail: %w", err)
		}
		if _, err := file.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("failed to seek shadow: %w", err)
		}
		if last[0] != '\n' {
			if _, err := file.WriteString("\n"); err != nil {
				return fmt.Errorf("failed to terminate last row: %w", err)
			}
		}
	}

	if err := w.WriteRecords(records); err != nil {
		return err
	}
	return w.Flush()
}

// Rewrite writes t in full to a fresh shadow and publishes it.
func Rewrite(path string, t *core.Table, opts Options) error {
	file, err := sys.CreateEmptyShadow(path)
	if err != nil {
		return err
	}

	if err := codec.WriteTable(file, t); err != nil {
		file.Close()
		return fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("%w: failed to sync shadow: %v", core.ErrShadowCreate, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: failed to close shadow before publish: %v", core.ErrShadowCreate, err)
	}

	return sys.PublishShadow(path, opts.MaxRetries, opts.Backoff)
}

// WriteHeaderOnly creates path holding only the header row.
func WriteHeaderOnly(path string, headers []string, opts Options) error {
	return Rewrite(path, &core.Table{Headers: headers}, opts)
}
