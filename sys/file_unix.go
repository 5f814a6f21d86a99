//go:build !windows

package sys

import "os"

// unixFile opens files with os.OpenFile; POSIX rename already replaces a
// target that other processes hold open.
type unixFile struct{}

// NewFile returns the platform File implementation.
func NewFile() File {
	return &unixFile{}
}

func (ufo *unixFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
