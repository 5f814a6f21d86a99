package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/INLOpen/stampdb/core"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *core.Table {
	return &core.Table{
		Headers: []string{"time", "ok", "count", "temp", "label"},
		Records: []core.Record{
			{Time: 1, Cells: []core.Cell{core.BoolCell(true), core.IntCell(10), core.FloatCell(20.5), core.TextCell("alpha")}},
			{Time: 2, Cells: []core.Cell{core.TextCell("maybe"), core.FloatCell(11.9), core.IntCell(21), core.IntCell(7)}},
			{Time: 3, Cells: []core.Cell{core.BoolCell(false), core.TextCell("n/a"), core.TextCell("hot"), core.TextCell(strings.Repeat("x", 10))}},
		},
	}
}

func TestSchema_TypesFromFirstRecord(t *testing.T) {
	schema, err := Schema(sampleTable(), Options{TextWidth: 8})
	require.NoError(t, err)

	require.Equal(t, 5, schema.NumFields())
	assert.Equal(t, arrow.FLOAT64, schema.Field(0).Type.ID())
	assert.Equal(t, arrow.BOOL, schema.Field(1).Type.ID())
	assert.Equal(t, arrow.INT64, schema.Field(2).Type.ID())
	assert.Equal(t, arrow.FLOAT64, schema.Field(3).Type.ID())
	require.Equal(t, arrow.FIXED_SIZE_BINARY, schema.Field(4).Type.ID())
	assert.Equal(t, 8, schema.Field(4).Type.(*arrow.FixedSizeBinaryType).ByteWidth)
	assert.Equal(t, "label", schema.Field(4).Name)
}

func TestSchema_EmptyTable(t *testing.T) {
	_, err := Schema(&core.Table{Headers: []string{"time", "a"}}, Options{})
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestToRecord_ConvertsAndPads(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := ToRecord(sampleTable(), Options{TextWidth: 8, Allocator: mem})
	require.NoError(t, err)
	defer rec.Release()

	require.Equal(t, int64(3), rec.NumRows())

	ts := rec.Column(0).(*array.Float64)
	assert.Equal(t, []float64{1, 2, 3}, ts.Float64Values())

	ok := rec.Column(1).(*array.Boolean)
	assert.True(t, ok.Value(0))
	assert.True(t, ok.IsNull(1), "text in a bool column becomes null")
	assert.False(t, ok.Value(2))

	count := rec.Column(2).(*array.Int64)
	assert.Equal(t, int64(10), count.Value(0))
	assert.Equal(t, int64(11), count.Value(1), "floats truncate into int columns")
	assert.True(t, count.IsNull(2))

	temp := rec.Column(3).(*array.Float64)
	assert.Equal(t, 20.5, temp.Value(0))
	assert.Equal(t, 21.0, temp.Value(1))
	assert.True(t, temp.IsNull(2))

	label := rec.Column(4).(*array.FixedSizeBinary)
	assert.Equal(t, "alpha   ", string(label.Value(0)))
	assert.Equal(t, "7       ", string(label.Value(1)))
	assert.Equal(t, "xxxxxxxx", string(label.Value(2)))
}

func TestFixedWidth_RuneBoundary(t *testing.T) {
	pad := make([]byte, 4)
	// "é" is two bytes; cutting at byte 4 would split the second one.
	got := fixedWidth("aéé", 4, pad)
	assert.Equal(t, "aé ", string(got[:4]))
	assert.Len(t, got, 4)
}

func TestWriteParquet_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, sampleTable(), Options{TextWidth: 8}))

	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(3), tbl.NumRows())
	assert.Equal(t, int64(5), tbl.NumCols())
	assert.Equal(t, "time", tbl.Schema().Field(0).Name)
	assert.Equal(t, arrow.INT64, tbl.Schema().Field(2).Type.ID())
}

func TestWriteParquetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, WriteParquetFile(path, sampleTable(), Options{}))

	err := WriteParquetFile(filepath.Join(t.TempDir(), "empty.parquet"), &core.Table{Headers: []string{"time"}}, Options{})
	assert.ErrorIs(t, err, ErrEmptyTable)
}
