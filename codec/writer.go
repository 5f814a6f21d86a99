package codec

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/INLOpen/stampdb/core"
)

// Writer emits records as CSV text. Fields containing the delimiter or the
// quote character are quoted.
type Writer struct {
	w *csv.Writer
}

// NewWriter returns a Writer on w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ','
	return &Writer{w: cw}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader(headers []string) error {
	if err := w.w.Write(headers); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

// WriteRecord writes one record, timestamp first.
func (w *Writer) WriteRecord(r core.Record) error {
	if err := w.w.Write(r.Tokens()); err != nil {
		return fmt.Errorf("failed to write record at %s: %w", core.FormatFloat(r.Time), err)
	}
	return nil
}

// WriteRecords writes records in the given order.
func (w *Writer) WriteRecords(rs []core.Record) error {
	for _, r := range rs {
		if err := w.WriteRecord(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered data to the underlying writer and reports any
// earlier write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv writer: %w", err)
	}
	return nil
}

// WriteTable writes the header row followed by every record.
func WriteTable(dst io.Writer, t *core.Table) error {
	w := NewWriter(dst)
	if err := w.WriteHeader(t.Headers); err != nil {
		return err
	}
	if err := w.WriteRecords(t.Records); err != nil {
		return err
	}
	return w.Flush()
}
