package core

import (
	"fmt"
	"math"
)

// Record is one row: a timestamp that identifies it plus one Cell per
// non-timestamp column.
type Record struct {
	Time  float64
	Cells []Cell
}

// NewRecord builds a Record from plain Go values.
func NewRecord(ts float64, values ...any) (Record, error) {
	cells := make([]Cell, 0, len(values))
	for i, v := range values {
		c, err := NewCell(v)
		if err != nil {
			return Record{}, fmt.Errorf("invalid value for column %d: %w", i, err)
		}
		cells = append(cells, c)
	}
	return Record{Time: ts, Cells: cells}, nil
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	cells := make([]Cell, len(r.Cells))
	copy(cells, r.Cells)
	return Record{Time: r.Time, Cells: cells}
}

// Equal compares timestamps and every cell.
func (r Record) Equal(o Record) bool {
	if r.Time != o.Time && !(math.IsNaN(r.Time) && math.IsNaN(o.Time)) {
		return false
	}
	if len(r.Cells) != len(o.Cells) {
		return false
	}
	for i := range r.Cells {
		if !r.Cells[i].Equal(o.Cells[i]) {
			return false
		}
	}
	return true
}

// Tokens serializes the record as on-disk fields, timestamp first.
func (r Record) Tokens() []string {
	out := make([]string, 0, len(r.Cells)+1)
	out = append(out, FormatFloat(r.Time))
	for _, c := range r.Cells {
		out = append(out, c.String())
	}
	return out
}

// Table is a header row (first name is the timestamp column) plus records
// in storage order.
type Table struct {
	Headers []string
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Width returns the number of cells each record must carry.
func (t *Table) Width() int {
	if len(t.Headers) == 0 {
		return 0
	}
	return len(t.Headers) - 1
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Headers: append([]string(nil), t.Headers...),
		Records: make([]Record, len(t.Records)),
	}
	for i, r := range t.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Times returns the timestamps in storage order.
func (t *Table) Times() []float64 {
	out := make([]float64, len(t.Records))
	for i, r := range t.Records {
		out[i] = r.Time
	}
	return out
}

// ColumnKinds returns the kind of each non-timestamp column as fixed by the
// first record. It returns false when the table is empty.
func (t *Table) ColumnKinds() ([]CellKind, bool) {
	if len(t.Records) == 0 {
		return nil, false
	}
	first := t.Records[0]
	kinds := make([]CellKind, len(first.Cells))
	for i, c := range first.Cells {
		kinds[i] = c.Kind()
	}
	return kinds, true
}
