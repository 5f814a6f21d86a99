package sys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

// LockSuffix is appended to a data file path to name its advisory lock.
const LockSuffix = ".lock"

// ErrLocked is returned when another holder keeps the lock past the timeout.
var ErrLocked = errors.New("sys: file is locked by another process")

// AcquireFileLock takes an exclusive advisory lock on path + LockSuffix,
// retrying until timeout. The lock file records the holder's pid and
// acquisition time for diagnostics. The returned release function unlocks
// and removes the lock file.
func AcquireFileLock(path string, timeout time.Duration) (func() error, error) {
	lockPath := path + LockSuffix
	release, err := AcquireOSFileLock(lockPath, timeout)
	if err != nil {
		if errors.Is(err, errLockUnsupported) {
			return acquireExclusiveCreate(lockPath, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, lockPath, err)
	}
	writeLockOwner(lockPath)
	return release, nil
}

// writeLockOwner stores pid (uint32) followed by unixnano (uint64).
func writeLockOwner(lockPath string) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(os.Getpid()))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(time.Now().UTC().UnixNano()))
	_ = os.WriteFile(lockPath, buf, 0644)
}

// acquireExclusiveCreate is used where no OS lock primitive exists: the lock
// is held for as long as the file exists.
func acquireExclusiveCreate(lockPath string, timeout time.Duration) (func() error, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			writeLockOwner(lockPath)
			return func() error {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
