package sys

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned when a volume cannot hold a rewrite.
var ErrInsufficientSpace = errors.New("sys: insufficient free disk space")

// FreeSpace reports the bytes available on the volume holding path.
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(filepath.Dir(path))
	if err != nil {
		return 0, fmt.Errorf("disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}

// EnsureFreeSpace fails with ErrInsufficientSpace when fewer than need bytes
// are free next to path.
func EnsureFreeSpace(path string, need uint64) error {
	free, err := FreeSpace(path)
	if err != nil {
		return err
	}
	if free < need {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, need, free)
	}
	return nil
}
