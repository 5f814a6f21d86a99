package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// FileHeader is the fixed header at the start of every backup archive.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano timestamp
	CompressorType CompressionType
}

func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader creates a new header with the current time and specified magic number.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}

// WriteTo encodes the header in little-endian order.
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return 0, fmt.Errorf("failed to write file header: %w", err)
	}
	return int64(h.Size()), nil
}

// ReadFileHeader decodes a header and checks its magic number and version.
func ReadFileHeader(r io.Reader, magic uint32) (FileHeader, error) {
	var h FileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return FileHeader{}, fmt.Errorf("failed to read file header: %w", err)
	}
	if h.Magic != magic {
		return FileHeader{}, fmt.Errorf("invalid magic number 0x%08x, want 0x%08x", h.Magic, magic)
	}
	if h.Version == 0 || h.Version > FormatVersion {
		return FileHeader{}, fmt.Errorf("unsupported format version %d", h.Version)
	}
	return h, nil
}
