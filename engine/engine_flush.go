package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/INLOpen/stampdb/checkpoint"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/INLOpen/stampdb/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Checkpoint writes the records appended since the last checkpoint to the
// end of the data file. It does nothing when no appends are pending. On
// failure the file is unchanged and the appends stay pending, so the call
// can be retried.
func (db *StampDB) Checkpoint(ctx context.Context) (err error) {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.appendLog.Empty() {
		return nil
	}

	ctx, span := db.tracer.Start(ctx, "StampDB.Checkpoint")
	start := time.Now()
	pending := db.appendLog.Entries()
	span.SetAttributes(attribute.Int("db.checkpoint.pending", len(pending)))
	defer func() {
		duration := time.Since(start)
		observeLatency(db.metrics.CheckpointLatencyHist, duration.Seconds())
		if err != nil {
			db.metrics.CheckpointErrorsTotal.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "checkpoint_failed")
		}
		_ = db.hookManager.Trigger(ctx, hooks.NewPostCheckpointEvent(hooks.PostCheckpointPayload{
			Records:  len(pending),
			Duration: duration,
			Error:    err,
		}))
		span.End()
	}()

	if err := db.hookManager.Trigger(ctx, hooks.NewPreCheckpointEvent(hooks.PreCheckpointPayload{Pending: len(pending)})); err != nil {
		return fmt.Errorf("checkpoint cancelled by pre-hook: %w", err)
	}

	records := make([]core.Record, 0, len(pending))
	for _, e := range pending {
		if e.Position < 0 || e.Position >= len(db.table.Records) {
			return fmt.Errorf("pending entry at %s references position %d outside table of %d records",
				core.FormatFloat(e.Time), e.Position, len(db.table.Records))
		}
		records = append(records, db.table.Records[e.Position])
	}

	if err := checkpoint.AppendRecords(db.path, db.table.Headers, records, db.publish); err != nil {
		db.logger.Error("Checkpoint failed, appends stay pending.", "pending", len(records), "error", err)
		return fmt.Errorf("checkpoint: %w", err)
	}

	db.appendLog.Clear()
	db.opCount = 0
	db.updateGauges()
	db.metrics.CheckpointTotal.Add(1)
	db.metrics.CheckpointRecordsTotal.Add(int64(len(records)))
	db.logger.Debug("Checkpoint complete.", "records", len(records), "duration", time.Since(start))
	return nil
}

// Compact checkpoints pending appends, then rewrites the whole data file from
// memory if any record was deleted since the last compaction. On failure the
// file is unchanged and the deletions stay pending.
func (db *StampDB) Compact(ctx context.Context) (err error) {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.Checkpoint(ctx); err != nil {
		return err
	}
	if db.deleteLog.Empty() {
		return nil
	}

	ctx, span := db.tracer.Start(ctx, "StampDB.Compact")
	start := time.Now()
	bytesBefore := fileSize(db.path)
	records := db.table.Len()
	span.SetAttributes(
		attribute.Int("db.compaction.records", records),
		attribute.Int("db.compaction.pending_deletes", db.deleteLog.Len()),
	)
	var bytesAfter int64
	defer func() {
		duration := time.Since(start)
		observeLatency(db.metrics.CompactionLatencyHist, duration.Seconds())
		if err != nil {
			db.metrics.CompactionErrorsTotal.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "compaction_failed")
		}
		_ = db.hookManager.Trigger(ctx, hooks.NewPostCompactionEvent(hooks.PostCompactionPayload{
			Path:        db.path,
			Records:     records,
			BytesBefore: bytesBefore,
			BytesAfter:  bytesAfter,
			Duration:    duration,
			Error:       err,
		}))
		span.End()
	}()

	if err := db.hookManager.Trigger(ctx, hooks.NewPreCompactionEvent(hooks.PreCompactionPayload{Path: db.path, Records: records})); err != nil {
		return fmt.Errorf("compaction cancelled by pre-hook: %w", err)
	}

	if db.opts.SpaceCheck && bytesBefore > 0 {
		// The shadow never outgrows the current file after deletions.
		if err := sys.EnsureFreeSpace(db.path, uint64(bytesBefore)); err != nil {
			return fmt.Errorf("compaction: %w", err)
		}
	}

	if err := checkpoint.Rewrite(db.path, db.table, db.publish); err != nil {
		db.logger.Error("Compaction failed, deletions stay pending.", "pending_deletes", db.deleteLog.Len(), "error", err)
		return fmt.Errorf("compaction: %w", err)
	}

	bytesAfter = fileSize(db.path)
	db.deleteLog.Clear()
	db.updateGauges()
	db.metrics.CompactionTotal.Add(1)
	db.metrics.CompactionBytesWrittenTotal.Add(bytesAfter)
	span.SetAttributes(attribute.Int64("db.compaction.bytes_before", bytesBefore), attribute.Int64("db.compaction.bytes_after", bytesAfter))
	db.logger.Info("Compaction complete.", "records", records, "bytes_before", bytesBefore, "bytes_after", bytesAfter)
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
