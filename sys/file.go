// Package sys wraps the file-system operations the engine depends on:
// platform file opening, the shadow-copy protocol, advisory locking and
// free-space probing. Open and rename implementations are swappable so tests
// can inject failures.
package sys

import (
	"io"
	"os"
	"sync/atomic"
)

// fileWrapper is a stable concrete type used to store the File interface
// inside an atomic.Value, which requires every stored value to share one
// concrete type.
type fileWrapper struct {
	f File
}

var defaultFile atomic.Value // stores fileWrapper

// File abstracts platform-specific file opening. On Windows files are opened
// with FILE_SHARE_DELETE so a reader never blocks publishing a shadow.
type File interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
}

// FileHandle is the subset of *os.File the engine uses.
type FileHandle interface {
	io.ReadWriteCloser
	io.Seeker
	io.StringWriter

	Stat() (os.FileInfo, error)
	Sync() error
	Name() string
}

type CreateHandler func(name string) (FileHandle, error)
type OpenHandler func(name string) (FileHandle, error)
type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)

func init() {
	defaultFile.Store(fileWrapper{f: NewFile()})
}

// SetDefaultFile replaces the platform File implementation.
func SetDefaultFile(file File) {
	defaultFile.Store(fileWrapper{f: file})
}

func currentFile() (File, error) {
	fw, ok := defaultFile.Load().(fileWrapper)
	if !ok || fw.f == nil {
		return nil, os.ErrInvalid
	}
	return fw.f, nil
}

var OpenFile OpenFileHandler = func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	file, err := currentFile()
	if err != nil {
		return nil, err
	}
	f, err := file.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &RealFile{f: f}, nil
}

var Create CreateHandler = func(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

var Open OpenHandler = func(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDONLY, 0)
}
