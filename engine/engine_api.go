package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/INLOpen/stampdb/index"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Read returns a table holding the record at exactly t, or no records.
func (db *StampDB) Read(ctx context.Context, t float64) (*core.Table, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	db.metrics.ReadTotal.Add(1)
	defer observeSince(db.metrics.ReadLatencyHist, start)

	out := &core.Table{Headers: db.Headers()}
	e, ok := db.index.Find(t)
	if !ok {
		return out, nil
	}
	if e.Position < 0 || e.Position >= len(db.table.Records) {
		db.metrics.SkippedEntriesTotal.Add(1)
		db.logger.Warn("Index entry out of range, skipping.", "time", t, "position", e.Position)
		return out, nil
	}
	out.Records = append(out.Records, db.table.Records[e.Position].Clone())
	return out, nil
}

// ReadRange returns every record with start <= time <= end in ascending time
// order. Use math.Inf for an open bound.
func (db *StampDB) ReadRange(ctx context.Context, start, end float64) (*core.Table, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := db.tracer.Start(ctx, "StampDB.ReadRange")
	began := time.Now()
	defer func() {
		observeSince(db.metrics.RangeQueryLatencyHist, began)
		span.End()
	}()
	db.metrics.RangeQueryTotal.Add(1)

	if err := db.hookManager.Trigger(ctx, hooks.NewPreQueryEvent(hooks.PreQueryPayload{Start: &start, End: &end})); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pre_query_hook_cancelled")
		return nil, fmt.Errorf("range query cancelled by pre-hook: %w", err)
	}
	span.SetAttributes(attribute.Float64("db.range.start", start), attribute.Float64("db.range.end", end))

	out := &core.Table{Headers: db.Headers()}
	for _, e := range db.index.Range(start, end) {
		if e.Position < 0 || e.Position >= len(db.table.Records) {
			db.metrics.SkippedEntriesTotal.Add(1)
			db.logger.Warn("Index entry out of range, skipping.", "time", e.Time, "position", e.Position)
			continue
		}
		out.Records = append(out.Records, db.table.Records[e.Position].Clone())
	}
	db.metrics.RangeRowsReturned.Add(int64(out.Len()))
	span.SetAttributes(attribute.Int("db.range.rows", out.Len()))

	_ = db.hookManager.Trigger(ctx, hooks.NewPostQueryEvent(hooks.PostQueryPayload{
		Start:    start,
		End:      end,
		Rows:     out.Len(),
		Duration: time.Since(began),
	}))
	return out, nil
}

// Append adds rec. It fails with core.ErrDuplicateTimestamp when a record
// already exists at rec.Time; use Update to replace it.
func (db *StampDB) Append(ctx context.Context, rec core.Record) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	defer observeSince(db.metrics.AppendLatencyHist, start)

	rec, err := db.prepare(ctx, rec)
	if err != nil {
		db.metrics.AppendErrorsTotal.Add(1)
		return err
	}
	if _, exists := db.index.Find(rec.Time); exists {
		db.metrics.AppendErrorsTotal.Add(1)
		db.metrics.DuplicateRejectsTotal.Add(1)
		return fmt.Errorf("%w: %s", core.ErrDuplicateTimestamp, core.FormatFloat(rec.Time))
	}
	db.metrics.AppendTotal.Add(1)
	return db.insert(ctx, rec)
}

// Update replaces the record at rec.Time, or appends rec when there is none.
// The old record is removed and rec is appended, so the replacement moves to
// the end of storage order.
func (db *StampDB) Update(ctx context.Context, rec core.Record) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	defer observeSince(db.metrics.AppendLatencyHist, start)

	rec, err := db.prepare(ctx, rec)
	if err != nil {
		db.metrics.AppendErrorsTotal.Add(1)
		return err
	}
	if e, exists := db.index.Find(rec.Time); exists {
		db.remove(e)
	}
	db.metrics.UpdateTotal.Add(1)
	return db.insert(ctx, rec)
}

// Delete removes the record at exactly t from memory and reports whether one
// existed. The file keeps the row until the next Compact.
func (db *StampDB) Delete(ctx context.Context, t float64) (bool, error) {
	_, ok, err := db.Take(ctx, t)
	return ok, err
}

// Take is Delete that also returns the removed record.
func (db *StampDB) Take(ctx context.Context, t float64) (core.Record, bool, error) {
	if err := db.checkOpen(); err != nil {
		return core.Record{}, false, err
	}
	start := time.Now()
	defer observeSince(db.metrics.DeleteLatencyHist, start)

	if err := db.hookManager.Trigger(ctx, hooks.NewPreDeleteEvent(hooks.PreDeletePayload{Time: &t})); err != nil {
		return core.Record{}, false, fmt.Errorf("delete cancelled by pre-hook: %w", err)
	}

	e, ok := db.index.Find(t)
	if !ok {
		db.metrics.DeleteMissesTotal.Add(1)
		_ = db.hookManager.Trigger(ctx, hooks.NewPostDeleteEvent(hooks.PostDeletePayload{Time: t}))
		return core.Record{}, false, nil
	}
	removed := db.remove(e)
	db.metrics.DeleteTotal.Add(1)
	db.updateGauges()

	_ = db.hookManager.Trigger(ctx, hooks.NewPostDeleteEvent(hooks.PostDeletePayload{Time: t, Deleted: true}))
	return removed, true, nil
}

// Table returns a deep copy of the headers and live records in storage order.
func (db *StampDB) Table() (*core.Table, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.table.Clone(), nil
}

// ColumnKinds returns the kind of each non-timestamp column, taken from the
// first record in storage order. It returns false for an empty table.
func (db *StampDB) ColumnKinds() ([]core.CellKind, bool) {
	if db.checkOpen() != nil {
		return nil, false
	}
	return db.table.ColumnKinds()
}

// prepare validates rec and runs the pre-append hooks, which may rewrite it.
// Nothing is mutated.
func (db *StampDB) prepare(ctx context.Context, rec core.Record) (core.Record, error) {
	if math.IsNaN(rec.Time) {
		return core.Record{}, core.ErrInvalidTimestamp
	}
	if len(rec.Cells) != db.table.Width() {
		return core.Record{}, fmt.Errorf("%w: expected %d cells, got %d", core.ErrColumnMismatch, db.table.Width(), len(rec.Cells))
	}

	rec = rec.Clone()
	if err := db.hookManager.Trigger(ctx, hooks.NewPreAppendEvent(hooks.PreAppendPayload{Record: &rec})); err != nil {
		return core.Record{}, fmt.Errorf("append cancelled by pre-hook: %w", err)
	}
	if math.IsNaN(rec.Time) {
		return core.Record{}, core.ErrInvalidTimestamp
	}
	if len(rec.Cells) != db.table.Width() {
		return core.Record{}, fmt.Errorf("%w: pre-hook left %d cells", core.ErrColumnMismatch, len(rec.Cells))
	}
	if db.schema != nil {
		if err := db.schema.Validate(rec); err != nil {
			return core.Record{}, err
		}
	}
	return rec, nil
}

// insert places a validated record at the next position and records it as
// pending. It runs an automatic checkpoint once the threshold is reached.
func (db *StampDB) insert(ctx context.Context, rec core.Record) error {
	pos := db.index.NextPosition()
	if pos != len(db.table.Records) {
		// Positions are dense, so this only happens if the index and table
		// diverged.
		return fmt.Errorf("index next position %d does not match table length %d", pos, len(db.table.Records))
	}
	entry := index.Entry{Time: rec.Time, Position: pos}
	db.table.Records = append(db.table.Records, rec)
	db.index.Insert(entry)
	db.appendLog.Add(entry)
	db.opCount++
	db.updateGauges()

	_ = db.hookManager.Trigger(ctx, hooks.NewPostAppendEvent(hooks.PostAppendPayload{
		Record:   rec.Clone(),
		Position: pos,
		Pending:  db.appendLog.Len(),
	}))

	if db.threshold > 0 && db.opCount >= db.threshold {
		db.opCount = 0
		db.metrics.AutoCheckpointTotal.Add(1)
		if err := db.Checkpoint(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrAutoCheckpoint, err)
		}
	}
	return nil
}

// remove erases the record referenced by e and renumbers every higher
// position in the index and the pending-append log.
func (db *StampDB) remove(e index.Entry) core.Record {
	pos := e.Position
	removed := db.table.Records[pos]
	db.table.Records = append(db.table.Records[:pos], db.table.Records[pos+1:]...)
	db.index.RemoveByPosition(pos)
	db.appendLog.RemovePosition(pos)
	db.deleteLog.Add(e)
	return removed
}
