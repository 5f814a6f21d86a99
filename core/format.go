package core

import (
	"fmt"
	"strings"
	"time"
)

// --- Magic Numbers ---
const (
	// BackupMagicNumber identifies a compressed backup archive.
	BackupMagicNumber uint32 = 0x42445453 // "STDB"
)

// --- File Names & Suffixes ---
const (
	// SchemaFileSuffix names the optional schema sidecar next to a data file.
	SchemaFileSuffix = ".schema"
	// BackupFileSuffix is the suffix for backup archives.
	BackupFileSuffix = ".stampbak"
	// DefaultTimeColumn is the header used for the timestamp column of new files.
	DefaultTimeColumn = "time"

	backupTimeLayout = "20060102T150405.000000000Z"
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version of the backup archive format.
	FormatVersion uint8 = 1
)

// FormatBackupFilename names a backup of base taken at t, for example
// "sensors-20240101T120000.000000000Z.stampbak".
func FormatBackupFilename(base string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", base, t.UTC().Format(backupTimeLayout), BackupFileSuffix)
}

// ParseBackupFilename extracts the base name and timestamp from a backup
// file name produced by FormatBackupFilename.
func ParseBackupFilename(name string) (string, time.Time, error) {
	if !strings.HasSuffix(name, BackupFileSuffix) {
		return "", time.Time{}, fmt.Errorf("file %s is not a backup archive", name)
	}
	stem := strings.TrimSuffix(name, BackupFileSuffix)
	idx := strings.LastIndex(stem, "-")
	if idx <= 0 {
		return "", time.Time{}, fmt.Errorf("backup file %s has no timestamp", name)
	}
	ts, err := time.Parse(backupTimeLayout, stem[idx+1:])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("backup file %s has invalid timestamp: %w", name, err)
	}
	return stem[:idx], ts, nil
}
