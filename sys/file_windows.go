//go:build windows

package sys

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// windowsFile opens files through CreateFile with FILE_SHARE_DELETE so an
// open handle does not prevent the shadow from being renamed over it.
type windowsFile struct{}

// NewFile returns the platform File implementation.
func NewFile() File {
	return &windowsFile{}
}

func (wfo *windowsFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	var access uint32
	var creationDisposition uint32
	shareMode := uint32(windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE)

	switch {
	case flag&os.O_RDWR != 0:
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
	case flag&os.O_WRONLY != 0:
		access = windows.GENERIC_WRITE
	default:
		access = windows.GENERIC_READ
	}

	switch {
	case flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		creationDisposition = windows.CREATE_NEW
	case flag&os.O_CREATE != 0 && flag&os.O_TRUNC != 0:
		creationDisposition = windows.CREATE_ALWAYS
	case flag&os.O_CREATE != 0:
		creationDisposition = windows.OPEN_ALWAYS
	case flag&os.O_TRUNC != 0:
		creationDisposition = windows.TRUNCATE_EXISTING
	default:
		creationDisposition = windows.OPEN_EXISTING
	}

	pathp, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	handle, err := windows.CreateFile(pathp, access, shareMode, nil, creationDisposition, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok && errno == windows.ERROR_FILE_NOT_FOUND {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("windows CreateFile failed for %s: %w", name, err)
	}

	file := os.NewFile(uintptr(handle), name)
	if flag&os.O_APPEND != 0 {
		if _, err := file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to seek to end of %s for append: %w", name, err)
		}
	}
	return file, nil
}
