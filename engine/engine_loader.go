package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/INLOpen/stampdb/checkpoint"
	"github.com/INLOpen/stampdb/codec"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/INLOpen/stampdb/index"
	"github.com/INLOpen/stampdb/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// load brings an engine from nothing to Open: lock, clean up, create the
// file if needed, then read it into the table and index.
func (db *StampDB) load(ctx context.Context) (err error) {
	ctx, span := db.tracer.Start(ctx, "StampDB.Open")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "open_failed")
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("db.path", db.path))
	start := time.Now()

	if db.opts.LockFile {
		unlock, lerr := sys.AcquireFileLock(db.path, db.opts.LockTimeout)
		if lerr != nil {
			return fmt.Errorf("failed to lock %s: %w", db.path, lerr)
		}
		db.unlock = unlock
	}

	if err := db.removeStaleShadow(); err != nil {
		return err
	}
	if err := db.loadSchema(); err != nil {
		return err
	}

	created, err := db.ensureFile()
	if err != nil {
		return err
	}

	f, err := sys.Open(db.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrFileOpen, db.path, err)
	}
	defer f.Close()

	table, ti, superseded, stats, err := loadFile(f, db.opts.Inference)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrFileOpen, db.path, err)
	}
	if len(table.Headers) == 0 {
		return fmt.Errorf("%w: %s has no header row", core.ErrFileOpen, db.path)
	}
	if db.schema != nil {
		if err := db.schema.CheckHeaders(table.Headers); err != nil {
			return fmt.Errorf("schema does not match %s: %w", db.path, err)
		}
	}

	db.table = table
	db.index = ti
	for _, e := range superseded {
		db.deleteLog.Add(e)
	}
	db.loadStats = LoadStats{
		Rows:       stats.Rows,
		Loaded:     table.Len(),
		Malformed:  stats.Malformed,
		Duplicates: len(superseded),
		Created:    created,
		Errors:     stats.Errors,
		Duration:   time.Since(start),
	}

	db.metrics.LoadedRecordsTotal.Add(int64(table.Len()))
	db.metrics.MalformedRowsTotal.Add(int64(stats.Malformed))
	db.metrics.DuplicateRowsOnLoad.Add(int64(len(superseded)))
	db.metrics.LoadDurationSeconds.Set(db.loadStats.Duration.Seconds())
	db.updateGauges()

	span.SetAttributes(
		attribute.Int("db.records", table.Len()),
		attribute.Int("db.malformed_rows", stats.Malformed),
		attribute.Int("db.duplicate_rows", len(superseded)),
		attribute.Bool("db.created", created),
	)
	if stats.Malformed > 0 {
		db.logger.Warn("Skipped malformed rows while loading.", "malformed", stats.Malformed, "first_errors", len(stats.Errors))
		for _, merr := range stats.Errors {
			db.logger.Debug("Malformed row.", "error", merr)
		}
	}
	if len(superseded) > 0 {
		db.logger.Warn("Duplicate timestamps in file, later rows kept.", "duplicates", len(superseded))
	}
	db.logger.Info("Engine opened.", "records", table.Len(), "duration", db.loadStats.Duration)

	var maxTime float64
	if n := ti.Len(); n > 0 {
		maxTime = ti.Entries()[n-1].Time
	}
	_ = db.hookManager.Trigger(ctx, hooks.NewPostOpenEvent(hooks.PostOpenPayload{
		Path:      db.path,
		Records:   table.Len(),
		Malformed: stats.Malformed,
		MaxTime:   maxTime,
	}))
	return nil
}

// removeStaleShadow deletes a shadow left behind by an interrupted write.
// The primary file is always the last published state, so the shadow holds
// nothing worth keeping.
func (db *StampDB) removeStaleShadow() error {
	shadow := sys.ShadowPath(db.path)
	if _, err := os.Stat(shadow); err != nil {
		return nil
	}
	if err := sys.RemoveShadow(db.path); err != nil {
		return fmt.Errorf("failed to remove stale shadow %s: %w", shadow, err)
	}
	db.metrics.StaleShadowsRemoved.Add(1)
	db.logger.Warn("Removed stale shadow file.", "shadow", shadow)
	return nil
}

// ensureFile creates the primary file with only a header row when it is
// missing or empty. It reports whether it did so.
func (db *StampDB) ensureFile() (bool, error) {
	info, err := os.Stat(db.path)
	switch {
	case err == nil && info.Size() > 0:
		return false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("%w: %s: %v", core.ErrFileOpen, db.path, err)
	}

	headers := db.opts.Headers
	if len(headers) == 0 && db.schema != nil {
		headers = db.schema.Headers()
	}
	if len(headers) == 0 {
		return false, fmt.Errorf("%w: %s", ErrNoHeaders, db.path)
	}
	if db.schema != nil {
		if err := db.schema.CheckHeaders(headers); err != nil {
			return false, fmt.Errorf("headers do not match schema: %w", err)
		}
	}
	if err := checkpoint.WriteHeaderOnly(db.path, headers, db.publish); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", db.path, err)
	}
	db.logger.Info("Created database file.", "headers", headers)
	return true, nil
}

func (db *StampDB) schemaPath() string {
	return db.path + core.SchemaFileSuffix
}

// loadSchema reads the schema sidecar if there is one, falling back to the
// schema passed in Options.
func (db *StampDB) loadSchema() error {
	f, err := sys.Open(db.schemaPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			db.schema = db.opts.Schema
			db.writeSchema = db.schema != nil
			return nil
		}
		return fmt.Errorf("failed to open schema %s: %w", db.schemaPath(), err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", db.schemaPath(), err)
	}
	s, err := core.DecodeSchema(data)
	if err != nil {
		return err
	}
	if db.opts.Schema != nil {
		db.logger.Debug("Schema sidecar present, ignoring schema from options.")
	}
	db.schema = s
	return nil
}

// persistSchema writes the schema sidecar through its own shadow.
func (db *StampDB) persistSchema() error {
	data, err := db.schema.Encode()
	if err != nil {
		return err
	}
	f, err := sys.CreateEmptyShadow(db.schemaPath())
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write schema: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync schema: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return sys.PublishShadow(db.schemaPath(), db.publish.MaxRetries, db.publish.Backoff)
}

// loadFile streams the primary file into a table and index. A row whose
// timestamp was already seen replaces the earlier row in place, and the
// replaced entry is returned so the next compaction drops it from the file.
func loadFile(r io.Reader, policy core.InferencePolicy) (*core.Table, *index.TimeIndex, []index.Entry, codec.Stats, error) {
	rd, err := codec.NewReader(r, policy)
	if err != nil {
		return nil, nil, nil, codec.Stats{}, err
	}
	table := &core.Table{Headers: rd.Headers()}
	ti := index.NewTimeIndex()
	var superseded []index.Entry
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, nil, rd.Stats(), err
		}
		if e, ok := ti.Find(rec.Time); ok {
			table.Records[e.Position] = rec
			superseded = append(superseded, e)
			continue
		}
		pos := ti.NextPosition()
		table.Records = append(table.Records, rec)
		ti.Insert(index.Entry{Time: rec.Time, Position: pos})
	}
	return table, ti, superseded, rd.Stats(), nil
}
