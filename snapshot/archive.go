package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/INLOpen/stampdb/compressors"
	"github.com/INLOpen/stampdb/core"
)

// ErrChecksumMismatch is returned when a restored payload does not match the
// checksum recorded at backup time.
var ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")

// payloadHeader follows the FileHeader.
type payloadHeader struct {
	OriginalSize uint64
	Checksum     uint32
}

// encodeArchive writes the archive for raw using c.
func encodeArchive(w io.Writer, raw []byte, c core.Compressor, createdAt time.Time) error {
	compressed, err := c.Compress(raw)
	if err != nil {
		return fmt.Errorf("failed to compress payload with %s: %w", c.Type(), err)
	}

	h := core.NewFileHeader(core.BackupMagicNumber, c.Type())
	h.CreatedAt = createdAt.UnixNano()
	if _, err := h.WriteTo(w); err != nil {
		return err
	}
	ph := payloadHeader{OriginalSize: uint64(len(raw)), Checksum: crc32.ChecksumIEEE(raw)}
	if err := binary.Write(w, binary.LittleEndian, ph); err != nil {
		return fmt.Errorf("failed to write payload header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// decodeArchiveHeader reads only the fixed headers.
func decodeArchiveHeader(r io.Reader) (core.FileHeader, payloadHeader, error) {
	h, err := core.ReadFileHeader(r, core.BackupMagicNumber)
	if err != nil {
		return core.FileHeader{}, payloadHeader{}, err
	}
	var ph payloadHeader
	if err := binary.Read(r, binary.LittleEndian, &ph); err != nil {
		return core.FileHeader{}, payloadHeader{}, fmt.Errorf("failed to read payload header: %w", err)
	}
	return h, ph, nil
}

// decodeArchive returns the verified raw payload of an archive.
func decodeArchive(data []byte) (core.FileHeader, []byte, error) {
	r := bytes.NewReader(data)
	h, ph, err := decodeArchiveHeader(r)
	if err != nil {
		return core.FileHeader{}, nil, err
	}

	c, err := compressors.ForType(h.CompressorType)
	if err != nil {
		return core.FileHeader{}, nil, err
	}
	rc, err := c.Decompress(data[len(data)-r.Len():])
	if err != nil {
		return core.FileHeader{}, nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return core.FileHeader{}, nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if uint64(len(raw)) != ph.OriginalSize {
		return core.FileHeader{}, nil, fmt.Errorf("%w: size %d, want %d", ErrChecksumMismatch, len(raw), ph.OriginalSize)
	}
	if sum := crc32.ChecksumIEEE(raw); sum != ph.Checksum {
		return core.FileHeader{}, nil, fmt.Errorf("%w: crc 0x%08x, want 0x%08x", ErrChecksumMismatch, sum, ph.Checksum)
	}
	return h, raw, nil
}
