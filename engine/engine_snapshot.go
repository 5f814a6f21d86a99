package engine

import (
	"context"
	"fmt"

	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/export"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/INLOpen/stampdb/snapshot"
)

// Backup compacts the data file so it matches memory, then writes a
// compressed archive of it into dir.
func (db *StampDB) Backup(ctx context.Context, dir string, compressor core.Compressor) (info snapshot.Info, err error) {
	if err := db.checkOpen(); err != nil {
		return snapshot.Info{}, err
	}
	defer func() {
		if err != nil {
			db.metrics.BackupErrorsTotal.Add(1)
		}
	}()
	if err := db.Compact(ctx); err != nil {
		return snapshot.Info{}, fmt.Errorf("backup: %w", err)
	}

	mgr := snapshot.NewManager(snapshot.Options{
		Logger:         db.logger,
		PublishRetries: db.publish.MaxRetries,
		PublishBackoff: db.publish.Backoff,
	})
	info, err = mgr.CreateFull(ctx, db.path, dir, compressor)
	if err != nil {
		return snapshot.Info{}, fmt.Errorf("backup: %w", err)
	}
	db.metrics.BackupTotal.Add(1)

	_ = db.hookManager.Trigger(ctx, hooks.NewPostBackupEvent(hooks.PostBackupPayload{
		Source:      db.path,
		Destination: info.Path,
		Compression: info.Compression,
		Bytes:       info.Size,
	}))
	return info, nil
}

// ExportParquet writes the live records to a Parquet file at path. Column
// types come from the first record.
func (db *StampDB) ExportParquet(ctx context.Context, path string, opts export.Options) error {
	t, err := db.Table()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return export.WriteParquetFile(path, t, opts)
}
