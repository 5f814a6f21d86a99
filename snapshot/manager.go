package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/sys"
)

// Options configures a Manager.
type Options struct {
	Logger         *slog.Logger
	PublishRetries int
	PublishBackoff time.Duration
}

type manager struct {
	logger  *slog.Logger
	retries int
	backoff time.Duration
	now     func() time.Time
}

var _ ManagerInterface = (*manager)(nil)

// NewManager returns the default ManagerInterface implementation.
func NewManager(opts Options) ManagerInterface {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &manager{
		logger:  logger.With("component", "SnapshotManager"),
		retries: opts.PublishRetries,
		backoff: opts.PublishBackoff,
		now:     time.Now,
	}
}

func readAll(path string) ([]byte, error) {
	f, err := sys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (m *manager) CreateFull(ctx context.Context, srcPath, backupDir string, compressor core.Compressor) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	raw, err := readAll(srcPath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read %s for backup: %w", srcPath, err)
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return Info{}, fmt.Errorf("failed to create backup dir %s: %w", backupDir, err)
	}

	createdAt := m.now().UTC()
	source := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	name := core.FormatBackupFilename(source, createdAt)
	finalPath := filepath.Join(backupDir, name)
	tempPath := finalPath + sys.ShadowSuffix

	file, err := sys.Create(tempPath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to create temp backup file: %w", err)
	}
	if err := encodeArchive(file, raw, compressor, createdAt); err != nil {
		file.Close()
		os.Remove(tempPath)
		return Info{}, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return Info{}, fmt.Errorf("failed to sync temp backup file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return Info{}, fmt.Errorf("failed to close temp backup file before rename: %w", err)
	}
	if err := sys.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return Info{}, fmt.Errorf("failed to rename temp backup file: %w", err)
	}

	info, err := m.inspect(finalPath)
	if err != nil {
		return Info{}, err
	}
	m.logger.Info("Backup created", "source", srcPath, "archive", finalPath, "compression", compressor.Type().String(), "bytes", info.Size, "original_bytes", info.OriginalSize)
	return info, nil
}

func (m *manager) Restore(ctx context.Context, archivePath, dstPath string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	data, err := readAll(archivePath)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}
	_, raw, err := decodeArchive(data)
	if err != nil {
		return Info{}, fmt.Errorf("archive %s: %w", archivePath, err)
	}

	shadow, err := sys.CreateEmptyShadow(dstPath)
	if err != nil {
		return Info{}, err
	}
	if _, err := io.Copy(shadow, bytes.NewReader(raw)); err != nil {
		shadow.Close()
		return Info{}, fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	if err := shadow.Sync(); err != nil {
		shadow.Close()
		return Info{}, fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	if err := shadow.Close(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", core.ErrShadowCreate, err)
	}
	if err := sys.PublishShadow(dstPath, m.retries, m.backoff); err != nil {
		return Info{}, err
	}

	info, err := m.inspect(archivePath)
	if err != nil {
		return Info{}, err
	}
	m.logger.Info("Backup restored", "archive", archivePath, "destination", dstPath, "bytes", len(raw))
	return info, nil
}

func (m *manager) inspect(path string) (Info, error) {
	f, err := sys.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	h, ph, err := decodeArchiveHeader(f)
	if err != nil {
		return Info{}, fmt.Errorf("archive %s: %w", path, err)
	}
	name := filepath.Base(path)
	source, _, _ := core.ParseBackupFilename(name)
	return Info{
		ID:           name,
		Path:         path,
		Source:       source,
		CreatedAt:    time.Unix(0, h.CreatedAt).UTC(),
		Compression:  h.CompressorType,
		Size:         st.Size(),
		OriginalSize: ph.OriginalSize,
	}, nil
}

func (m *manager) ListSnapshots(backupDir string) ([]Info, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup dir %s: %w", backupDir, err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), core.BackupFileSuffix) {
			continue
		}
		info, err := m.inspect(filepath.Join(backupDir, e.Name()))
		if err != nil {
			m.logger.Warn("Skipping unreadable backup archive", "name", e.Name(), "error", err)
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

func (m *manager) Validate(archivePath string) error {
	data, err := readAll(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}
	if _, _, err := decodeArchive(data); err != nil {
		return fmt.Errorf("archive %s: %w", archivePath, err)
	}
	return nil
}

func (m *manager) Prune(ctx context.Context, backupDir string, opts PruneOptions) ([]string, error) {
	infos, err := m.ListSnapshots(backupDir)
	if err != nil {
		return nil, err
	}

	keep := len(infos)
	if opts.KeepN > 0 && opts.KeepN < keep {
		keep = opts.KeepN
	}
	if opts.KeepN <= 0 && opts.PruneOlderThan <= 0 {
		return nil, nil
	}

	// Candidates are every archive except the newest `keep` ones when KeepN
	// is set; with only an age policy every archive is a candidate.
	candidates := infos
	if opts.KeepN > 0 {
		candidates = infos[:len(infos)-keep]
	}

	now := m.now()
	var deleted []string
	for _, info := range candidates {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if opts.PruneOlderThan > 0 && now.Sub(info.CreatedAt) <= opts.PruneOlderThan {
			continue
		}
		if err := os.Remove(info.Path); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %s: %w", info.ID, err)
		}
		m.logger.Info("Pruned backup", "id", info.ID, "created_at", info.CreatedAt)
		deleted = append(deleted, info.ID)
	}
	return deleted, nil
}
