package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/INLOpen/stampdb/codec"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/engine"
	"golang.org/x/term"
)

type outputFormat int

const (
	formatCSV outputFormat = iota
	formatTable
	formatJSON
)

// resolveFormat maps the -format flag to an outputFormat. "auto" picks an
// aligned table for a terminal and CSV otherwise, so piped output can be fed
// back into other tools.
func resolveFormat(name string, out io.Writer) outputFormat {
	switch strings.ToLower(name) {
	case "table":
		return formatTable
	case "csv":
		return formatCSV
	case "json":
		return formatJSON
	}
	if isTerminal(out) {
		return formatTable
	}
	return formatCSV
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeTable(w io.Writer, t *core.Table, format outputFormat) error {
	switch format {
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
		for _, r := range t.Records {
			fmt.Fprintln(tw, strings.Join(r.Tokens(), "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "(%d rows)\n", t.Len())
		return nil
	case formatJSON:
		rows := make([]map[string]any, 0, t.Len())
		for _, r := range t.Records {
			row := make(map[string]any, len(t.Headers))
			if len(t.Headers) > 0 {
				row[t.Headers[0]] = r.Time
			}
			for i, c := range r.Cells {
				if i+1 < len(t.Headers) {
					row[t.Headers[i+1]] = c
				}
			}
			rows = append(rows, row)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		return codec.WriteTable(w, t)
	}
}

func writeStats(w io.Writer, s engine.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "path\t%s\n", s.Path)
	fmt.Fprintf(tw, "records\t%d\n", s.Records)
	fmt.Fprintf(tw, "pending appends\t%d\n", s.PendingAppends)
	fmt.Fprintf(tw, "pending deletes\t%d\n", s.PendingDeletes)
	fmt.Fprintf(tw, "checkpoint threshold\t%d\n", s.CheckpointThreshold)
	fmt.Fprintf(tw, "schema\t%t\n", s.HasSchema)
	fmt.Fprintf(tw, "rows read at open\t%d\n", s.Load.Rows)
	fmt.Fprintf(tw, "malformed rows\t%d\n", s.Load.Malformed)
	fmt.Fprintf(tw, "duplicate rows\t%d\n", s.Load.Duplicates)
	fmt.Fprintf(tw, "load time\t%s\n", s.Load.Duration)
	return tw.Flush()
}
