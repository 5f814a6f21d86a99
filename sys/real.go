package sys

import "os"

var _ FileHandle = (*RealFile)(nil)

// RealFile adapts *os.File to FileHandle.
type RealFile struct {
	f *os.File
}

func (rf *RealFile) Write(p []byte) (n int, err error) {
	return rf.f.Write(p)
}

func (rf *RealFile) Read(p []byte) (n int, err error) {
	return rf.f.Read(p)
}

func (rf *RealFile) Seek(offset int64, whence int) (int64, error) {
	return rf.f.Seek(offset, whence)
}

func (rf *RealFile) WriteString(s string) (n int, err error) {
	return rf.f.WriteString(s)
}

func (rf *RealFile) Stat() (os.FileInfo, error) {
	return rf.f.Stat()
}

func (rf *RealFile) Sync() error {
	return rf.f.Sync()
}

func (rf *RealFile) Name() string {
	return rf.f.Name()
}

func (rf *RealFile) Close() error {
	return rf.f.Close()
}
