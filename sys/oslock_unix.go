//go:build linux || darwin || freebsd || netbsd || openbsd

package sys

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var errLockUnsupported = errors.New("sys: os file lock unsupported")

// AcquireOSFileLock takes a non-blocking exclusive flock on lockPath,
// retrying until timeout. The lock is tied to the open file description and
// is dropped by release or process exit.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())

	deadline := time.Now().Add(timeout)
	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			rel := func() error {
				_ = os.Remove(lockPath)
				_ = unix.Flock(fd, unix.LOCK_UN)
				return f.Close()
			}
			return rel, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			_ = f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, err
		}
		time.Sleep(25 * time.Millisecond)
	}
}
