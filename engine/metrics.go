package engine

import (
	"expvar"
	"fmt"
)

// EngineMetrics holds all expvar variables for a StampDB instance.
type EngineMetrics struct {
	PublishedGlobally bool // Indicates if the metrics are published to the global expvar namespace.

	AppendTotal           *expvar.Int
	AppendErrorsTotal     *expvar.Int
	DuplicateRejectsTotal *expvar.Int
	UpdateTotal           *expvar.Int
	DeleteTotal           *expvar.Int
	DeleteMissesTotal     *expvar.Int
	ReadTotal             *expvar.Int
	RangeQueryTotal       *expvar.Int
	RangeRowsReturned     *expvar.Int
	SkippedEntriesTotal   *expvar.Int

	CheckpointTotal        *expvar.Int
	CheckpointErrorsTotal  *expvar.Int
	CheckpointRecordsTotal *expvar.Int
	AutoCheckpointTotal    *expvar.Int

	CompactionTotal             *expvar.Int
	CompactionErrorsTotal       *expvar.Int
	CompactionBytesWrittenTotal *expvar.Int

	BackupTotal       *expvar.Int
	BackupErrorsTotal *expvar.Int

	LoadedRecordsTotal  *expvar.Int
	MalformedRowsTotal  *expvar.Int
	DuplicateRowsOnLoad *expvar.Int
	LoadDurationSeconds *expvar.Float
	StaleShadowsRemoved *expvar.Int

	Records        *expvar.Int
	PendingAppends *expvar.Int
	PendingDeletes *expvar.Int

	AppendLatencyHist     *expvar.Map
	ReadLatencyHist       *expvar.Map
	RangeQueryLatencyHist *expvar.Map
	DeleteLatencyHist     *expvar.Map
	CheckpointLatencyHist *expvar.Map
	CompactionLatencyHist *expvar.Map
}

// NewEngineMetrics creates and initializes a new EngineMetrics struct with expvar variables.
func NewEngineMetrics(publishGlobally bool, prefix string) *EngineMetrics {
	var newIntFunc func(string) *expvar.Int
	var newFloatFunc func(string) *expvar.Float
	var newMapFunc func(string) *expvar.Map

	if publishGlobally {
		newIntFunc = publishExpvarInt
		newFloatFunc = publishExpvarFloat
		newMapFunc = publishExpvarMap
	} else {
		newIntFunc = func(_ string) *expvar.Int { return new(expvar.Int) }
		newFloatFunc = func(_ string) *expvar.Float { return new(expvar.Float) }
		newMapFunc = func(_ string) *expvar.Map {
			m := new(expvar.Map)
			m.Init()
			return m
		}
	}

	em := &EngineMetrics{
		PublishedGlobally:     publishGlobally,
		AppendTotal:           newIntFunc(prefix + "append_total"),
		AppendErrorsTotal:     newIntFunc(prefix + "append_errors_total"),
		DuplicateRejectsTotal: newIntFunc(prefix + "duplicate_rejects_total"),
		UpdateTotal:           newIntFunc(prefix + "update_total"),
		DeleteTotal:           newIntFunc(prefix + "delete_total"),
		DeleteMissesTotal:     newIntFunc(prefix + "delete_misses_total"),
		ReadTotal:             newIntFunc(prefix + "read_total"),
		RangeQueryTotal:       newIntFunc(prefix + "range_query_total"),
		RangeRowsReturned:     newIntFunc(prefix + "range_rows_returned_total"),
		SkippedEntriesTotal:   newIntFunc(prefix + "skipped_index_entries_total"),

		CheckpointTotal:        newIntFunc(prefix + "checkpoint_total"),
		CheckpointErrorsTotal:  newIntFunc(prefix + "checkpoint_errors_total"),
		CheckpointRecordsTotal: newIntFunc(prefix + "checkpoint_records_total"),
		AutoCheckpointTotal:    newIntFunc(prefix + "auto_checkpoint_total"),

		CompactionTotal:             newIntFunc(prefix + "compaction_total"),
		CompactionErrorsTotal:       newIntFunc(prefix + "compaction_errors_total"),
		CompactionBytesWrittenTotal: newIntFunc(prefix + "compaction_bytes_written_total"),

		BackupTotal:       newIntFunc(prefix + "backup_total"),
		BackupErrorsTotal: newIntFunc(prefix + "backup_errors_total"),

		LoadedRecordsTotal:  newIntFunc(prefix + "loaded_records_total"),
		MalformedRowsTotal:  newIntFunc(prefix + "malformed_rows_total"),
		DuplicateRowsOnLoad: newIntFunc(prefix + "duplicate_rows_on_load_total"),
		LoadDurationSeconds: newFloatFunc(prefix + "load_duration_seconds"),
		StaleShadowsRemoved: newIntFunc(prefix + "stale_shadows_removed_total"),

		Records:        newIntFunc(prefix + "records"),
		PendingAppends: newIntFunc(prefix + "pending_appends"),
		PendingDeletes: newIntFunc(prefix + "pending_deletes"),

		AppendLatencyHist:     newMapFunc(prefix + "append_latency_seconds"),
		ReadLatencyHist:       newMapFunc(prefix + "read_latency_seconds"),
		RangeQueryLatencyHist: newMapFunc(prefix + "range_query_latency_seconds"),
		DeleteLatencyHist:     newMapFunc(prefix + "delete_latency_seconds"),
		CheckpointLatencyHist: newMapFunc(prefix + "checkpoint_latency_seconds"),
		CompactionLatencyHist: newMapFunc(prefix + "compaction_latency_seconds"),
	}

	histMaps := []*expvar.Map{
		em.AppendLatencyHist, em.ReadLatencyHist, em.RangeQueryLatencyHist,
		em.DeleteLatencyHist, em.CheckpointLatencyHist, em.CompactionLatencyHist,
	}
	for _, m := range histMaps {
		m.Set("count", new(expvar.Int))
		m.Set("sum", new(expvar.Float))
		for _, b := range latencyBuckets {
			m.Set(fmt.Sprintf("le_%.4f", b), new(expvar.Int))
		}
		m.Set("le_inf", new(expvar.Int))
	}
	return em
}

// histogramCount returns the number of observations recorded in a latency map.
func histogramCount(m *expvar.Map) int64 {
	if m == nil {
		return 0
	}
	if v, ok := m.Get("count").(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}
