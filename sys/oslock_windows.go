//go:build windows

package sys

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

var errLockUnsupported = errors.New("sys: os file lock unsupported")

// AcquireOSFileLock locks a single byte of lockPath with LockFileEx,
// retrying until timeout.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	h := windows.Handle(f.Fd())
	var ov windows.Overlapped

	deadline := time.Now().Add(timeout)
	for {
		err = windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ov)
		if err == nil {
			rel := func() error {
				_ = windows.UnlockFileEx(h, 0, 1, 0, &ov)
				_ = f.Close()
				_ = os.Remove(lockPath)
				return nil
			}
			return rel, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, err
		}
		time.Sleep(25 * time.Millisecond)
	}
}
