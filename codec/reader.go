package codec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/INLOpen/stampdb/core"
)

// maxReportedErrors caps how many malformed-row errors Stats retains.
const maxReportedErrors = 32

// Stats summarises a read.
type Stats struct {
	Rows      int     // data rows encountered, malformed ones included
	Loaded    int     // records returned to the caller
	Malformed int     // rows skipped
	Errors    []error // first malformed-row errors, each a *core.MalformedRowError
}

func (s *Stats) addMalformed(err error) {
	s.Malformed++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, err)
	}
}

// Reader streams records from CSV text.
type Reader struct {
	r       *csv.Reader
	policy  core.InferencePolicy
	headers []string
	stats   Stats
}

// NewReader reads the header row and returns a Reader positioned at the
// first data row. An empty input yields a Reader with no headers.
func NewReader(r io.Reader, policy core.InferencePolicy) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.Comma = ','
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	rd := &Reader{r: cr, policy: policy}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return rd, nil
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	rd.headers = trimFields(header)
	return rd, nil
}

// Headers returns the header row.
func (rd *Reader) Headers() []string {
	return rd.headers
}

// Stats returns the counters accumulated so far.
func (rd *Reader) Stats() Stats {
	return rd.stats
}

// Next returns the next well-formed record, skipping malformed rows. It
// returns io.EOF once the input is exhausted.
func (rd *Reader) Next() (core.Record, error) {
	for {
		fields, err := rd.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.Record{}, io.EOF
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rd.stats.Rows++
				rd.stats.addMalformed(&core.MalformedRowError{Line: pe.StartLine, Reason: pe.Err.Error()})
				continue
			}
			return core.Record{}, fmt.Errorf("failed to read row: %w", err)
		}
		rd.stats.Rows++

		line, _ := rd.r.FieldPos(0)
		rec, merr := rd.decode(trimFields(fields), line)
		if merr != nil {
			rd.stats.addMalformed(merr)
			continue
		}
		rd.stats.Loaded++
		return rec, nil
	}
}

func (rd *Reader) decode(fields []string, line int) (core.Record, error) {
	if len(fields) != len(rd.headers) {
		return core.Record{}, &core.MalformedRowError{
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, got %d", len(rd.headers), len(fields)),
		}
	}
	ts, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(ts) {
		return core.Record{}, &core.MalformedRowError{
			Line:   line,
			Reason: fmt.Sprintf("invalid timestamp %q", fields[0]),
		}
	}
	cells := make([]core.Cell, len(fields)-1)
	for i, f := range fields[1:] {
		cells[i] = core.ParseCell(f, rd.policy)
	}
	return core.Record{Time: ts, Cells: cells}, nil
}

// ReadTable decodes a whole input into a Table in row order.
func ReadTable(r io.Reader, policy core.InferencePolicy) (*core.Table, Stats, error) {
	rd, err := NewReader(r, policy)
	if err != nil {
		return nil, Stats{}, err
	}
	t := &core.Table{Headers: rd.Headers()}
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rd.Stats(), err
		}
		t.Records = append(t.Records, rec)
	}
	return t, rd.Stats(), nil
}

func trimFields(fields []string) []string {
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}
