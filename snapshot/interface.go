// Package snapshot creates, validates and restores compressed backup
// archives of a data file.
package snapshot

import (
	"context"
	"time"

	"github.com/INLOpen/stampdb/core"
)

// Info holds metadata about a single backup archive.
type Info struct {
	ID           string // file name of the archive
	Path         string
	Source       string // base name of the data file that was backed up
	CreatedAt    time.Time
	Compression  core.CompressionType
	Size         int64  // bytes on disk
	OriginalSize uint64 // bytes of the data file at backup time
}

// PruneOptions defines the policies for pruning old backups.
type PruneOptions struct {
	// KeepN is the number of newest archives always kept. Zero or negative
	// disables the policy.
	KeepN int

	// PruneOlderThan removes archives older than this age, subject to KeepN.
	PruneOlderThan time.Duration
}

// ManagerInterface defines a high-level API for managing backups.
type ManagerInterface interface {
	// CreateFull writes a compressed archive of the data file at srcPath into
	// backupDir and returns its metadata.
	CreateFull(ctx context.Context, srcPath, backupDir string, compressor core.Compressor) (Info, error)

	// Restore replaces the data file at dstPath with the contents of an
	// archive. The replacement goes through the shadow file so a failure
	// leaves dstPath untouched.
	Restore(ctx context.Context, archivePath, dstPath string) (Info, error)

	// ListSnapshots returns the archives in backupDir, oldest first.
	ListSnapshots(backupDir string) ([]Info, error)

	// Validate checks that an archive decodes and its checksum matches.
	Validate(archivePath string) error

	// Prune deletes old archives and returns the IDs that were deleted.
	Prune(ctx context.Context, backupDir string, opts PruneOptions) (deletedIDs []string, err error)
}
