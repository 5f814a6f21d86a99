// Package engine implements StampDB, an embedded time-indexed record store
// kept in a single CSV file.
//
// A StampDB owns one data file. Records live in memory in storage order and
// are located through a time index. Appends reach the file at checkpoints;
// deletions reach it at compactions. Every file change goes through a shadow
// copy that is renamed over the primary file, so the file on disk is always
// either the old or the new consistent version.
//
// A StampDB is not safe for concurrent use. Callers serialize access to an
// instance, and at most one instance may own a path at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/INLOpen/stampdb/checkpoint"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/INLOpen/stampdb/index"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultCheckpointThreshold is the number of mutations between automatic
	// checkpoints when Options leaves it unset.
	DefaultCheckpointThreshold = 10
	DefaultPublishRetries      = 5
	DefaultPublishBackoff      = 50 * time.Millisecond
	DefaultLockTimeout         = time.Second
)

var (
	ErrEngineClosed = errors.New("engine is closed")
	ErrInvalidPath  = errors.New("database path is empty")
	// ErrNoHeaders is returned when the data file has to be created but
	// neither headers nor a schema were supplied.
	ErrNoHeaders = errors.New("no headers available to create database file")
	// ErrAutoCheckpoint wraps the failure of a checkpoint started by a
	// mutation. The mutation itself has been applied in memory and its
	// record stays pending.
	ErrAutoCheckpoint = errors.New("automatic checkpoint failed")
)

// Options configures a StampDB.
type Options struct {
	Path string
	// Headers are written when the data file is missing or empty. The first
	// header names the timestamp column.
	Headers []string
	// Schema is an optional column contract. A schema sidecar already on
	// disk takes precedence; otherwise this schema is persisted on Close.
	Schema *core.Schema
	// CheckpointThreshold is the number of appends and updates after which a
	// checkpoint runs automatically. Zero selects the default; a negative
	// value disables automatic checkpoints.
	CheckpointThreshold int
	// PublishRetries is the number of extra rename attempts when publishing
	// a shadow. Zero selects the default; a negative value means a single
	// attempt with no retries.
	PublishRetries int
	PublishBackoff time.Duration
	Inference      core.InferencePolicy
	// LockFile holds an advisory lock on Path + ".lock" while open.
	LockFile    bool
	LockTimeout time.Duration
	// SpaceCheck verifies free disk space before a full rewrite.
	SpaceCheck bool

	Metrics        *EngineMetrics
	Logger         *slog.Logger
	HookManager    hooks.HookManager
	TracerProvider trace.TracerProvider
}

type engineState int

const (
	stateOpen engineState = iota
	stateClosed
)

// StampDB is an open data file.
type StampDB struct {
	opts        Options
	path        string
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *EngineMetrics
	hookManager hooks.HookManager
	ownsHooks   bool
	publish     checkpoint.Options

	table     *core.Table
	index     *index.TimeIndex
	appendLog index.Log
	deleteLog index.Log

	schema      *core.Schema
	writeSchema bool

	threshold int
	opCount   int

	loadStats LoadStats
	unlock    func() error
	state     engineState
}

// LoadStats describes what Open found in the data file.
type LoadStats struct {
	Rows       int
	Loaded     int
	Malformed  int
	Duplicates int
	Created    bool
	Errors     []error
	Duration   time.Duration
}

// Stats is a point-in-time summary of an open engine.
type Stats struct {
	Path                string
	Records             int
	PendingAppends      int
	PendingDeletes      int
	OpsSinceCheckpoint  int
	CheckpointThreshold int
	HasSchema           bool
	Load                LoadStats
}

func (o Options) withDefaults() Options {
	if o.CheckpointThreshold == 0 {
		o.CheckpointThreshold = DefaultCheckpointThreshold
	}
	switch {
	case o.PublishRetries == 0:
		o.PublishRetries = DefaultPublishRetries
	case o.PublishRetries < 0:
		o.PublishRetries = 0
	}
	if o.PublishBackoff <= 0 {
		o.PublishBackoff = DefaultPublishBackoff
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	return o
}

// Open loads the data file at opts.Path, creating it with headers when it is
// missing or empty, and builds the time index.
func Open(ctx context.Context, opts Options) (*StampDB, error) {
	if opts.Path == "" {
		return nil, ErrInvalidPath
	}
	opts = opts.withDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewEngineMetrics(false, "stampdb_")
	}

	db := &StampDB{
		opts:      opts,
		path:      opts.Path,
		logger:    logger.With("component", "StampDB", "path", opts.Path),
		metrics:   metrics,
		publish:   checkpoint.Options{MaxRetries: opts.PublishRetries, Backoff: opts.PublishBackoff},
		threshold: opts.CheckpointThreshold,
		state:     stateOpen,
	}
	if opts.TracerProvider != nil {
		db.tracer = opts.TracerProvider.Tracer("github.com/INLOpen/stampdb/engine")
	} else {
		db.tracer = noop.NewTracerProvider().Tracer("")
	}
	if opts.HookManager != nil {
		db.hookManager = opts.HookManager
	} else {
		db.hookManager = hooks.NewHookManager(db.logger)
		db.ownsHooks = true
	}

	if err := db.load(ctx); err != nil {
		db.releaseLock()
		if db.ownsHooks {
			db.hookManager.Stop()
		}
		return nil, err
	}
	return db, nil
}

// Path returns the primary data file path.
func (db *StampDB) Path() string { return db.path }

// Metrics returns the engine's metric set.
func (db *StampDB) Metrics() *EngineMetrics { return db.metrics }

// Headers returns a copy of the header row.
func (db *StampDB) Headers() []string {
	if db.table == nil {
		return nil
	}
	return append([]string(nil), db.table.Headers...)
}

// Schema returns the active column schema, or nil.
func (db *StampDB) Schema() *core.Schema { return db.schema }

// CheckpointThreshold returns the current automatic checkpoint threshold.
func (db *StampDB) CheckpointThreshold() int { return db.threshold }

// SetCheckpointThreshold changes the automatic checkpoint threshold. A value
// of zero or less disables automatic checkpoints. The pending operation count
// is kept, so lowering the threshold below it checkpoints on the next append.
func (db *StampDB) SetCheckpointThreshold(n int) {
	db.threshold = n
}

// Stats returns a summary of the engine state.
func (db *StampDB) Stats() Stats {
	return Stats{
		Path:                db.path,
		Records:             db.table.Len(),
		PendingAppends:      db.appendLog.Len(),
		PendingDeletes:      db.deleteLog.Len(),
		OpsSinceCheckpoint:  db.opCount,
		CheckpointThreshold: db.threshold,
		HasSchema:           db.schema != nil,
		Load:                db.loadStats,
	}
}

func (db *StampDB) checkOpen() error {
	if db.state != stateOpen {
		return ErrEngineClosed
	}
	return nil
}

// Close runs the PreClose hooks, which may cancel it, then a final compaction, persists a new schema sidecar, releases the
// file lock and drops all in-memory state. If the compaction fails the engine
// stays open and the error is returned. Closing a closed engine is a no-op.
func (db *StampDB) Close() error {
	if db.state == stateClosed {
		return nil
	}
	ctx := context.Background()
	if err := db.hookManager.Trigger(ctx, hooks.NewPreCloseEvent(hooks.EngineLifecyclePayload{Path: db.path})); err != nil {
		db.logger.Info("Close cancelled by pre-hook, engine stays open.", "error", err)
		return fmt.Errorf("close cancelled by pre-hook: %w", err)
	}

	if err := db.Compact(ctx); err != nil {
		db.logger.Error("Final compaction failed, engine stays open.", "error", err)
		return fmt.Errorf("close: %w", err)
	}
	if db.writeSchema {
		if err := db.persistSchema(); err != nil {
			db.logger.Error("Failed to persist schema sidecar, engine stays open.", "error", err)
			return fmt.Errorf("close: %w", err)
		}
		db.writeSchema = false
	}

	var closeErr error
	if err := db.releaseLock(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("failed to release lock: %w", err))
	}

	db.table = &core.Table{}
	db.index = index.NewTimeIndex()
	db.appendLog.Clear()
	db.deleteLog.Clear()
	db.opCount = 0
	db.state = stateClosed
	db.updateGauges()

	_ = db.hookManager.Trigger(ctx, hooks.NewPostCloseEvent(hooks.EngineLifecyclePayload{Path: db.path}))
	if db.ownsHooks {
		db.hookManager.Stop()
	}
	db.logger.Info("Engine closed.")
	return closeErr
}

func (db *StampDB) releaseLock() error {
	if db.unlock == nil {
		return nil
	}
	err := db.unlock()
	db.unlock = nil
	return err
}

func (db *StampDB) updateGauges() {
	db.metrics.Records.Set(int64(db.table.Len()))
	db.metrics.PendingAppends.Set(int64(db.appendLog.Len()))
	db.metrics.PendingDeletes.Set(int64(db.deleteLog.Len()))
}
