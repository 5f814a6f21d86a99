//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package sys

import (
	"errors"
	"time"
)

var errLockUnsupported = errors.New("sys: os file lock unsupported")

// AcquireOSFileLock reports errLockUnsupported so callers fall back to an
// exclusive-create lock file.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	return nil, errLockUnsupported
}
