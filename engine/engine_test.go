package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/INLOpen/stampdb/codec"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "time,id,value\n1.0,1,10.5\n2.0,2,20.5\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// setupEngine writes content to a fresh data file and opens it.
func setupEngine(t *testing.T, content string, mutate func(*Options)) (*StampDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if content != "" {
		writeFile(t, path, content)
	}
	opts := Options{
		Path:           path,
		PublishRetries: 1,
		PublishBackoff: time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	db, err := Open(context.Background(), opts)
	require.NoError(t, err)
	return db, path
}

func mustRecord(t *testing.T, ts float64, values ...any) core.Record {
	t.Helper()
	rec, err := core.NewRecord(ts, values...)
	require.NoError(t, err)
	return rec
}

func rangeTimes(t *testing.T, db *StampDB, start, end float64) []float64 {
	t.Helper()
	out, err := db.ReadRange(context.Background(), start, end)
	require.NoError(t, err)
	return out.Times()
}

// reloadTable parses the file at path the same way Open does.
func reloadTable(t *testing.T, path string) *core.Table {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	table, _, err := codec.ReadTable(f, core.InferIntFirst)
	require.NoError(t, err)
	return table
}

func TestStampDB_AppendCheckpointDeleteCompactReopen(t *testing.T) {
	ctx := context.Background()
	db, path := setupEngine(t, sampleCSV, nil)

	require.NoError(t, db.Append(ctx, mustRecord(t, 3.0, 3, 30.5)))
	require.NoError(t, db.Checkpoint(ctx))
	require.NoError(t, db.Close())

	db, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, rangeTimes(t, db, 0, 10))

	deleted, err := db.Delete(ctx, 2.0)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, db.Compact(ctx))
	require.NoError(t, db.Close())

	db, err = Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, []float64{1.0, 3.0}, rangeTimes(t, db, 0, 10))

	got, err := db.Read(ctx, 3.0)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.True(t, got.Records[0].Equal(mustRecord(t, 3.0, 3, 30.5)))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := Open(ctx, Options{})
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("MissingFileWithHeaders", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "new.csv")
		db, err := Open(ctx, Options{Path: path, Headers: []string{"time", "a", "b"}})
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, "time,a,b\n", readFile(t, path))
		assert.True(t, db.Stats().Load.Created)
		assert.Equal(t, []string{"time", "a", "b"}, db.Headers())
		_, err = os.Stat(sys.ShadowPath(path))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("EmptyFileWithHeaders", func(t *testing.T) {
		db, path := setupEngine(t, "", func(o *Options) {
			o.Headers = []string{"time", "x"}
		})
		defer db.Close()
		assert.Equal(t, "time,x\n", readFile(t, path))
	})

	t.Run("MissingFileWithoutHeaders", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "new.csv")
		_, err := Open(ctx, Options{Path: path})
		assert.ErrorIs(t, err, ErrNoHeaders)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("StaleShadowRemoved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.csv")
		writeFile(t, path, sampleCSV)
		writeFile(t, sys.ShadowPath(path), "time,id,value\n9.0,9,9.9\n")

		db, err := Open(ctx, Options{Path: path})
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(sys.ShadowPath(path))
		assert.True(t, os.IsNotExist(err))
		assert.Equal(t, []float64{1.0, 2.0}, rangeTimes(t, db, math.Inf(-1), math.Inf(1)))
		assert.Equal(t, int64(1), db.Metrics().StaleShadowsRemoved.Value())
	})

	t.Run("MalformedRowsSkipped", func(t *testing.T) {
		db, _ := setupEngine(t, "time,id,value\n1.0,1,10.5\n2.0,2\nabc,3,30.5\n4.0,4,40.5\n", nil)
		defer db.Close()

		stats := db.Stats()
		assert.Equal(t, 4, stats.Load.Rows)
		assert.Equal(t, 2, stats.Load.Malformed)
		assert.Equal(t, 2, stats.Records)
		for _, err := range stats.Load.Errors {
			assert.True(t, core.IsMalformedRow(err))
		}
		assert.Equal(t, []float64{1.0, 4.0}, rangeTimes(t, db, 0, 10))
	})

	t.Run("DuplicateTimestampsInFile", func(t *testing.T) {
		db, path := setupEngine(t, "time,v\n1.0,a\n2.0,b\n1.0,c\n", nil)

		stats := db.Stats()
		assert.Equal(t, 1, stats.Load.Duplicates)
		assert.Equal(t, 2, stats.Records)
		assert.Equal(t, 1, stats.PendingDeletes)

		got, err := db.Read(context.Background(), 1.0)
		require.NoError(t, err)
		require.Equal(t, 1, got.Len())
		assert.Equal(t, "c", got.Records[0].Cells[0].String())

		require.NoError(t, db.Close())
		assert.Equal(t, "time,v\n1.0,c\n2.0,b\n", readFile(t, path))
	})

	t.Run("FileWithOnlyHeader", func(t *testing.T) {
		db, _ := setupEngine(t, "time,v\n", nil)
		defer db.Close()
		assert.Equal(t, 0, db.Stats().Records)
		_, ok := db.ColumnKinds()
		assert.False(t, ok)
	})
}

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("OutOfOrderAppendsReadBackSorted", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = -1 })
		defer db.Close()

		for _, ts := range []float64{7, -3, 5, 2.5} {
			require.NoError(t, db.Append(ctx, mustRecord(t, ts, int(ts), ts*10)))
		}
		assert.Equal(t, []float64{-3, 1, 2, 2.5, 5, 7}, rangeTimes(t, db, math.Inf(-1), math.Inf(1)))

		table, err := db.Table()
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 7, -3, 5, 2.5}, table.Times(), "storage order is append order")
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		before, err := db.Table()
		require.NoError(t, err)

		err = db.Append(ctx, mustRecord(t, 2.0, 99, 99.9))
		assert.ErrorIs(t, err, core.ErrDuplicateTimestamp)

		after, err := db.Table()
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, 0, db.Stats().PendingAppends)
		assert.Equal(t, int64(1), db.Metrics().DuplicateRejectsTotal.Value())
	})

	t.Run("ColumnMismatch", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		err := db.Append(ctx, mustRecord(t, 5.0, 1))
		assert.ErrorIs(t, err, core.ErrColumnMismatch)
		assert.Equal(t, 2, db.Stats().Records)
	})

	t.Run("NaNTimestamp", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		err := db.Append(ctx, mustRecord(t, math.NaN(), 1, 1.0))
		assert.ErrorIs(t, err, core.ErrInvalidTimestamp)
	})

	t.Run("CallerRecordNotAliased", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		rec := mustRecord(t, 3.0, 3, "x")
		require.NoError(t, db.Append(ctx, rec))
		rec.Cells[1] = core.TextCell("changed")

		got, err := db.Read(ctx, 3.0)
		require.NoError(t, err)
		assert.Equal(t, "x", got.Records[0].Cells[1].String())
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = -1 })

	require.NoError(t, db.Update(ctx, mustRecord(t, 1.0, 100, 100.5)))
	require.NoError(t, db.Update(ctx, mustRecord(t, 9.0, 9, 90.5)))

	got, err := db.Read(ctx, 1.0)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.True(t, got.Records[0].Equal(mustRecord(t, 1.0, 100, 100.5)))
	assert.Equal(t, []float64{1, 2, 9}, rangeTimes(t, db, 0, 10))

	stats := db.Stats()
	assert.Equal(t, 2, stats.PendingAppends)
	assert.Equal(t, 1, stats.PendingDeletes)

	require.NoError(t, db.Close())
	assert.Equal(t, "time,id,value\n2.0,2,20.5\n1.0,100,100.5\n9.0,9,90.5\n", readFile(t, path))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadAfterDeleteIsEmpty", func(t *testing.T) {
		db, _ := setupEngine(t, "time,v\n1,a\n2,b\n3,c\n4,d\n", nil)
		defer db.Close()

		deleted, err := db.Delete(ctx, 2)
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := db.Read(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Len())

		_, found := db.index.Find(2)
		assert.False(t, found)
		for _, e := range db.index.Entries() {
			require.Less(t, e.Position, len(db.table.Records))
			assert.Equal(t, e.Time, db.table.Records[e.Position].Time)
		}
		assert.Equal(t, db.index.Len(), db.table.Len())
	})

	t.Run("TakeReturnsRemovedRecord", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		removed, ok, err := db.Take(ctx, 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, removed.Equal(mustRecord(t, 2, 2, 20.5)))
		assert.Equal(t, []float64{1}, rangeTimes(t, db, math.Inf(-1), math.Inf(1)))

		_, ok, err = db.Take(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Missing", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		deleted, err := db.Delete(ctx, 42)
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Equal(t, 0, db.Stats().PendingDeletes)
	})

	t.Run("PendingAppendDeleted", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = -1 })

		require.NoError(t, db.Append(ctx, mustRecord(t, 3.0, 3, 30.5)))
		require.NoError(t, db.Append(ctx, mustRecord(t, 4.0, 4, 40.5)))
		require.NoError(t, db.Append(ctx, mustRecord(t, 5.0, 5, 50.5)))

		deleted, err := db.Delete(ctx, 4.0)
		require.NoError(t, err)
		require.True(t, deleted)
		assert.Equal(t, 2, db.Stats().PendingAppends)

		require.NoError(t, db.Checkpoint(ctx))
		assert.Equal(t, "time,id,value\n1.0,1,10.5\n2.0,2,20.5\n3.0,3,30.5\n5.0,5,50.5\n", readFile(t, path))
		require.NoError(t, db.Close())
	})

	t.Run("FileUnchangedUntilCompact", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		_, err := db.Delete(ctx, 1.0)
		require.NoError(t, err)
		require.NoError(t, db.Checkpoint(ctx))
		assert.Equal(t, sampleCSV, readFile(t, path))

		require.NoError(t, db.Compact(ctx))
		assert.Equal(t, "time,id,value\n2.0,2,20.5\n", readFile(t, path))
		assert.Equal(t, 0, db.Stats().PendingDeletes)
	})
}

func TestAutoCheckpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("ThresholdReached", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = 3 })
		defer db.Close()

		require.NoError(t, db.Append(ctx, mustRecord(t, 3, 3, 3.5)))
		require.NoError(t, db.Append(ctx, mustRecord(t, 4, 4, 4.5)))
		assert.Equal(t, sampleCSV, readFile(t, path))
		assert.Equal(t, 2, db.Stats().OpsSinceCheckpoint)

		require.NoError(t, db.Append(ctx, mustRecord(t, 5, 5, 5.5)))
		stats := db.Stats()
		assert.Equal(t, 0, stats.PendingAppends)
		assert.Equal(t, 0, stats.OpsSinceCheckpoint)
		assert.Equal(t, 5, reloadTable(t, path).Len())
		assert.Equal(t, int64(1), db.Metrics().AutoCheckpointTotal.Value())
	})

	t.Run("Disabled", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = -1 })
		defer db.Close()

		for i := 0; i < 20; i++ {
			require.NoError(t, db.Append(ctx, mustRecord(t, float64(10+i), i, 0.5)))
		}
		assert.Equal(t, sampleCSV, readFile(t, path))
		assert.Equal(t, 20, db.Stats().PendingAppends)
	})

	t.Run("ThresholdChangedAtRuntime", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = 100 })
		defer db.Close()

		require.NoError(t, db.Append(ctx, mustRecord(t, 3, 3, 3.5)))
		require.NoError(t, db.Append(ctx, mustRecord(t, 4, 4, 4.5)))
		db.SetCheckpointThreshold(2)
		assert.Equal(t, 2, db.CheckpointThreshold())

		require.NoError(t, db.Append(ctx, mustRecord(t, 5, 5, 5.5)))
		assert.Equal(t, 5, reloadTable(t, path).Len())
	})

	t.Run("FailureKeepsRecordPending", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = 1 })

		restore := sys.SetRenameFunc(func(string, string) error { return errors.New("rename blocked") })
		err := db.Append(ctx, mustRecord(t, 3, 3, 3.5))
		restore()

		assert.ErrorIs(t, err, ErrAutoCheckpoint)
		assert.ErrorIs(t, err, core.ErrShadowPublish)
		assert.Equal(t, 1, db.Stats().PendingAppends)
		assert.Equal(t, sampleCSV, readFile(t, path))

		got, rerr := db.Read(ctx, 3)
		require.NoError(t, rerr)
		assert.Equal(t, 1, got.Len())

		require.NoError(t, db.Close())
		assert.Equal(t, 3, reloadTable(t, path).Len())
	})
}

func TestCheckpoint_PublishFailureLeavesStateIntact(t *testing.T) {
	ctx := context.Background()
	db, path := setupEngine(t, sampleCSV, func(o *Options) { o.CheckpointThreshold = -1 })

	require.NoError(t, db.Append(ctx, mustRecord(t, 3.0, 3, 30.5)))

	attempts := 0
	restore := sys.SetRenameFunc(func(string, string) error {
		attempts++
		return errors.New("target held open")
	})
	err := db.Checkpoint(ctx)
	restore()

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrShadowPublish)
	assert.Equal(t, 2, attempts, "one attempt plus one retry")
	assert.Equal(t, 1, db.Stats().PendingAppends)
	assert.Equal(t, sampleCSV, readFile(t, path))
	assert.Equal(t, int64(1), db.Metrics().CheckpointErrorsTotal.Value())

	require.NoError(t, db.Checkpoint(ctx))
	assert.Equal(t, 0, db.Stats().PendingAppends)
	assert.Equal(t, sampleCSV+"3.0,3,30.5\n", readFile(t, path))
	require.NoError(t, db.Close())
}

func TestCheckpoint_PublishRetryCount(t *testing.T) {
	tests := []struct {
		name     string
		retries  int
		attempts int
	}{
		{name: "NegativeMeansSingleAttempt", retries: -1, attempts: 1},
		{name: "ZeroSelectsDefault", retries: 0, attempts: DefaultPublishRetries + 1},
		{name: "Explicit", retries: 3, attempts: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db, _ := setupEngine(t, sampleCSV, func(o *Options) {
				o.CheckpointThreshold = -1
				o.PublishRetries = tt.retries
			})
			require.NoError(t, db.Append(ctx, mustRecord(t, 3.0, 3, 30.5)))

			attempts := 0
			restore := sys.SetRenameFunc(func(string, string) error {
				attempts++
				return errors.New("target held open")
			})
			err := db.Checkpoint(ctx)
			restore()

			require.ErrorIs(t, err, core.ErrShadowPublish)
			assert.Equal(t, tt.attempts, attempts)
			require.NoError(t, db.Close())
		})
	}
}

func TestCheckpoint_NoPendingIsNoop(t *testing.T) {
	db, path := setupEngine(t, sampleCSV, nil)
	defer db.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, db.Checkpoint(context.Background()))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
	assert.Equal(t, int64(0), db.Metrics().CheckpointTotal.Value())
}

func TestCompact(t *testing.T) {
	ctx := context.Background()

	t.Run("FileReconstructsTable", func(t *testing.T) {
		db, path := setupEngine(t, "time,id,label,ok\n1,1,\"a,b\",true\n2,2,plain,false\n3,3,\"say \"\"hi\"\"\",true\n", func(o *Options) {
			o.CheckpointThreshold = -1
		})
		defer db.Close()

		require.NoError(t, db.Append(ctx, mustRecord(t, 4, 4, "new", false)))
		_, err := db.Delete(ctx, 2)
		require.NoError(t, err)
		require.NoError(t, db.Update(ctx, mustRecord(t, 1, 10, "x,y", false)))
		require.NoError(t, db.Compact(ctx))

		stats := db.Stats()
		assert.Equal(t, 0, stats.PendingAppends)
		assert.Equal(t, 0, stats.PendingDeletes)

		mem, err := db.Table()
		require.NoError(t, err)
		disk := reloadTable(t, path)
		assert.Equal(t, mem.Headers, disk.Headers)
		require.Equal(t, mem.Len(), disk.Len())
		for i := range mem.Records {
			assert.True(t, mem.Records[i].Equal(disk.Records[i]), "record %d", i)
		}
		assert.NotContains(t, readFile(t, path), "plain")
	})

	t.Run("PublishFailureKeepsDeletes", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, nil)

		_, err := db.Delete(ctx, 1.0)
		require.NoError(t, err)

		restore := sys.SetRenameFunc(func(string, string) error { return errors.New("busy") })
		err = db.Compact(ctx)
		restore()

		assert.ErrorIs(t, err, core.ErrShadowPublish)
		assert.Equal(t, 1, db.Stats().PendingDeletes)
		assert.Equal(t, sampleCSV, readFile(t, path))

		require.NoError(t, db.Compact(ctx))
		assert.Equal(t, "time,id,value\n2.0,2,20.5\n", readFile(t, path))
		require.NoError(t, db.Close())
	})

	t.Run("NoDeletesOnlyCheckpoints", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, nil)
		defer db.Close()

		require.NoError(t, db.Append(ctx, mustRecord(t, 3, 3, 3.5)))
		require.NoError(t, db.Compact(ctx))
		assert.Equal(t, sampleCSV+"3.0,3,3.5\n", readFile(t, path))
		assert.Equal(t, int64(0), db.Metrics().CompactionTotal.Value())
		assert.Equal(t, int64(1), db.Metrics().CheckpointTotal.Value())
	})

	t.Run("WithSpaceCheck", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) { o.SpaceCheck = true })
		defer db.Close()

		_, err := db.Delete(ctx, 2.0)
		require.NoError(t, err)
		require.NoError(t, db.Compact(ctx))
		assert.Equal(t, "time,id,value\n1.0,1,10.5\n", readFile(t, path))
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("OperationsAfterClose", func(t *testing.T) {
		db, _ := setupEngine(t, sampleCSV, nil)
		require.NoError(t, db.Close())
		require.NoError(t, db.Close(), "second close is a no-op")

		_, err := db.Read(ctx, 1)
		assert.ErrorIs(t, err, ErrEngineClosed)
		_, err = db.ReadRange(ctx, 0, 1)
		assert.ErrorIs(t, err, ErrEngineClosed)
		assert.ErrorIs(t, db.Append(ctx, mustRecord(t, 5, 5, 5.5)), ErrEngineClosed)
		assert.ErrorIs(t, db.Update(ctx, mustRecord(t, 5, 5, 5.5)), ErrEngineClosed)
		_, err = db.Delete(ctx, 1)
		assert.ErrorIs(t, err, ErrEngineClosed)
		assert.ErrorIs(t, db.Checkpoint(ctx), ErrEngineClosed)
		assert.ErrorIs(t, db.Compact(ctx), ErrEngineClosed)
		_, err = db.Table()
		assert.ErrorIs(t, err, ErrEngineClosed)
	})

	t.Run("FailedCompactionKeepsEngineOpen", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, nil)
		require.NoError(t, db.Append(ctx, mustRecord(t, 3, 3, 3.5)))

		restore := sys.SetRenameFunc(func(string, string) error { return errors.New("busy") })
		err := db.Close()
		restore()

		assert.ErrorIs(t, err, core.ErrShadowPublish)
		_, err = db.Read(ctx, 3)
		require.NoError(t, err, "engine must still be open")

		require.NoError(t, db.Close())
		assert.Equal(t, sampleCSV+"3.0,3,3.5\n", readFile(t, path))
	})

	t.Run("ReleasesLock", func(t *testing.T) {
		db, path := setupEngine(t, sampleCSV, func(o *Options) {
			o.LockFile = true
			o.LockTimeout = 20 * time.Millisecond
		})

		_, err := Open(ctx, Options{Path: path, LockFile: true, LockTimeout: 20 * time.Millisecond})
		assert.ErrorIs(t, err, sys.ErrLocked)

		require.NoError(t, db.Close())

		db2, err := Open(ctx, Options{Path: path, LockFile: true})
		require.NoError(t, err)
		require.NoError(t, db2.Close())
	})
}
