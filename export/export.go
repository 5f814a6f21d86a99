// Package export flattens a Table snapshot into a columnar Arrow record and
// writes it as Parquet. Each column's type is fixed by the first record's
// cell in that column; later cells of another kind are converted where the
// conversion is numeric and become null otherwise.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/sys"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// DefaultTextWidth is the fixed byte width of exported text columns.
const DefaultTextWidth = 64

// ErrEmptyTable is returned when there is no first record to type columns by.
var ErrEmptyTable = errors.New("export: table has no records")

// Options controls the export layout.
type Options struct {
	// TextWidth is the byte width of text columns. Values are space padded
	// or truncated on a rune boundary. Zero means DefaultTextWidth.
	TextWidth int
	// Allocator defaults to memory.NewGoAllocator().
	Allocator memory.Allocator
}

func (o Options) withDefaults() Options {
	if o.TextWidth <= 0 {
		o.TextWidth = DefaultTextWidth
	}
	if o.Allocator == nil {
		o.Allocator = memory.NewGoAllocator()
	}
	return o
}

// Schema returns the Arrow schema for t: a float64 timestamp column followed
// by one column per data header typed from the first record.
func Schema(t *core.Table, opts Options) (*arrow.Schema, error) {
	opts = opts.withDefaults()
	kinds, ok := t.ColumnKinds()
	if !ok {
		return nil, ErrEmptyTable
	}
	if len(t.Headers) != len(kinds)+1 {
		return nil, fmt.Errorf("%w: %d headers for %d cells", core.ErrColumnMismatch, len(t.Headers), len(kinds))
	}

	fields := make([]arrow.Field, 0, len(t.Headers))
	fields = append(fields, arrow.Field{Name: t.Headers[0], Type: arrow.PrimitiveTypes.Float64})
	for i, k := range kinds {
		fields = append(fields, arrow.Field{Name: t.Headers[i+1], Type: arrowType(k, opts.TextWidth), Nullable: true})
	}
	md := arrow.NewMetadata([]string{"stampdb.text_width"}, []string{strconv.Itoa(opts.TextWidth)})
	return arrow.NewSchema(fields, &md), nil
}

func arrowType(k core.CellKind, textWidth int) arrow.DataType {
	switch k {
	case core.CellKindBool:
		return arrow.FixedWidthTypes.Boolean
	case core.CellKindInt:
		return arrow.PrimitiveTypes.Int64
	case core.CellKindFloat:
		return arrow.PrimitiveTypes.Float64
	default:
		return &arrow.FixedSizeBinaryType{ByteWidth: textWidth}
	}
}

// ToRecord builds an Arrow record holding every record of t in table order.
// The caller releases the result.
func ToRecord(t *core.Table, opts Options) (arrow.Record, error) {
	opts = opts.withDefaults()
	schema, err := Schema(t, opts)
	if err != nil {
		return nil, err
	}
	kinds, _ := t.ColumnKinds()

	b := array.NewRecordBuilder(opts.Allocator, schema)
	defer b.Release()

	ts := b.Field(0).(*array.Float64Builder)
	ts.Reserve(len(t.Records))
	for _, r := range t.Records {
		ts.Append(r.Time)
	}

	pad := make([]byte, opts.TextWidth)
	for col, kind := range kinds {
		fb := b.Field(col + 1)
		for _, r := range t.Records {
			if col >= len(r.Cells) {
				fb.AppendNull()
				continue
			}
			appendCell(fb, kind, r.Cells[col], opts.TextWidth, pad)
		}
	}
	return b.NewRecord(), nil
}

func appendCell(fb array.Builder, kind core.CellKind, c core.Cell, width int, pad []byte) {
	switch kind {
	case core.CellKindBool:
		bb := fb.(*array.BooleanBuilder)
		if v, ok := c.ValueBool(); ok {
			bb.Append(v)
			return
		}
		bb.AppendNull()
	case core.CellKindInt:
		ib := fb.(*array.Int64Builder)
		switch c.Kind() {
		case core.CellKindInt:
			v, _ := c.ValueInt64()
			ib.Append(v)
		case core.CellKindFloat:
			v, _ := c.ValueFloat64()
			ib.Append(int64(v))
		default:
			ib.AppendNull()
		}
	case core.CellKindFloat:
		flb := fb.(*array.Float64Builder)
		if v, ok := c.Numeric(); ok {
			flb.Append(v)
			return
		}
		flb.AppendNull()
	default:
		fsb := fb.(*array.FixedSizeBinaryBuilder)
		fsb.Append(fixedWidth(c.String(), width, pad))
	}
}

// fixedWidth truncates s to at most width bytes without splitting a rune and
// pads the remainder with spaces.
func fixedWidth(s string, width int, pad []byte) []byte {
	if len(s) > width {
		cut := width
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	out := pad[:width]
	n := copy(out, s)
	for i := n; i < width; i++ {
		out[i] = ' '
	}
	return out
}

// WriteParquet writes t as a single row group of Snappy-compressed Parquet.
func WriteParquet(w io.Writer, t *core.Table, opts Options) error {
	rec, err := ToRecord(t, opts)
	if err != nil {
		return err
	}
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	// Hide any Close method so closing the parquet writer leaves w open.
	writer, err := pqarrow.NewFileWriter(rec.Schema(), struct{ io.Writer }{w}, props, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record to parquet: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// WriteParquetFile writes t to path, replacing any existing file.
func WriteParquetFile(path string, t *core.Table, opts Options) error {
	file, err := sys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	if err := WriteParquet(file, t, opts); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync parquet file: %w", err)
	}
	return file.Close()
}
