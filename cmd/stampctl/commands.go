package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/INLOpen/stampdb/codec"
	"github.com/INLOpen/stampdb/compressors"
	"github.com/INLOpen/stampdb/config"
	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/engine"
	"github.com/INLOpen/stampdb/export"
	"github.com/INLOpen/stampdb/snapshot"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("invalid usage")

// maxParallelVerify bounds how many archives verify decodes at once.
const maxParallelVerify = 4

type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	tp     *sdktrace.TracerProvider
	out    io.Writer
	in     io.Reader
	format outputFormat
	// assumeYes skips the restore confirmation prompt.
	assumeYes bool
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "backups":
		return c.listBackups()
	case "verify":
		return c.verifyBackups(ctx)
	case "restore":
		return c.restore(ctx, args)
	}

	db, err := c.openEngine(ctx)
	if err != nil {
		return err
	}
	cmdErr := c.dispatch(ctx, db, cmd, args)
	if err := db.Close(); err != nil {
		return errors.Join(cmdErr, fmt.Errorf("close: %w", err))
	}
	return cmdErr
}

func (c *cli) dispatch(ctx context.Context, db *engine.StampDB, cmd string, args []string) error {
	switch cmd {
	case "read":
		if len(args) != 1 {
			return fmt.Errorf("%w: read takes one timestamp", errUsage)
		}
		ts, err := parseTime(args[0])
		if err != nil {
			return err
		}
		t, err := db.Read(ctx, ts)
		if err != nil {
			return err
		}
		return writeTable(c.out, t, c.format)

	case "range":
		if len(args) != 2 {
			return fmt.Errorf("%w: range takes a start and an end", errUsage)
		}
		start, err := parseTime(args[0])
		if err != nil {
			return err
		}
		end, err := parseTime(args[1])
		if err != nil {
			return err
		}
		t, err := db.ReadRange(ctx, start, end)
		if err != nil {
			return err
		}
		return writeTable(c.out, t, c.format)

	case "append", "update":
		rec, err := c.parseRecord(args)
		if err != nil {
			return err
		}
		if cmd == "append" {
			return db.Append(ctx, rec)
		}
		return db.Update(ctx, rec)

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("%w: delete takes one timestamp", errUsage)
		}
		ts, err := parseTime(args[0])
		if err != nil {
			return err
		}
		removed, deleted, err := db.Take(ctx, ts)
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Fprintf(c.out, "no record at %s\n", core.FormatFloat(ts))
			return nil
		}
		return writeTable(c.out, &core.Table{Headers: db.Headers(), Records: []core.Record{removed}}, c.format)

	case "checkpoint":
		return db.Checkpoint(ctx)

	case "compact":
		return db.Compact(ctx)

	case "stats":
		return writeStats(c.out, db.Stats())

	case "export":
		if len(args) != 1 {
			return fmt.Errorf("%w: export takes an output path", errUsage)
		}
		return db.ExportParquet(ctx, args[0], export.Options{TextWidth: c.cfg.Export.TextWidth})

	case "backup":
		return c.backup(ctx, db)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) openEngine(ctx context.Context) (*engine.StampDB, error) {
	headers := peekHeaders(c.cfg.Engine.Path)
	if len(headers) == 0 {
		headers = c.cfg.Engine.Headers
	}
	hm := buildHooks(c.cfg.Hooks, headers, c.logger)
	opts, err := engineOptions(c.cfg, c.logger, hm, c.tp)
	if err != nil {
		return nil, err
	}
	return engine.Open(ctx, opts)
}

// peekHeaders returns the header row of the file at path, or nil.
func peekHeaders(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	rd, err := codec.NewReader(f, core.InferIntFirst)
	if err != nil {
		return nil
	}
	return rd.Headers()
}

func parseTime(s string) (float64, error) {
	ts, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return ts, nil
}

// parseRecord turns "<time> <value>..." into a record, inferring each cell
// the same way the file loader does.
func (c *cli) parseRecord(args []string) (core.Record, error) {
	if len(args) < 1 {
		return core.Record{}, fmt.Errorf("%w: expected <time> <value>...", errUsage)
	}
	ts, err := parseTime(args[0])
	if err != nil {
		return core.Record{}, err
	}
	policy := c.cfg.Engine.InferencePolicy()
	cells := make([]core.Cell, 0, len(args)-1)
	for _, tok := range args[1:] {
		cells = append(cells, core.ParseCell(tok, policy))
	}
	return core.Record{Time: ts, Cells: cells}, nil
}

func (c *cli) snapshotManager() snapshot.ManagerInterface {
	return snapshot.NewManager(snapshot.Options{
		Logger:         c.logger,
		PublishRetries: c.cfg.Engine.PublishRetries,
		PublishBackoff: config.ParseDuration(c.cfg.Engine.PublishBackoff, engine.DefaultPublishBackoff, c.logger),
	})
}

func (c *cli) backup(ctx context.Context, db *engine.StampDB) error {
	compressor, err := compressors.ByName(c.cfg.Snapshot.Compression)
	if err != nil {
		return err
	}
	info, err := db.Backup(ctx, c.cfg.Snapshot.Dir, compressor)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "backup written: %s (%d bytes, %d uncompressed)\n", info.Path, info.Size, info.OriginalSize)

	pruned, err := c.snapshotManager().Prune(ctx, c.cfg.Snapshot.Dir, snapshot.PruneOptions{
		KeepN:          c.cfg.Snapshot.KeepN,
		PruneOlderThan: config.ParseDuration(c.cfg.Snapshot.PruneOlderThan, 0, c.logger),
	})
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	for _, id := range pruned {
		fmt.Fprintf(c.out, "pruned: %s\n", id)
	}
	return nil
}

func (c *cli) listBackups() error {
	infos, err := c.snapshotManager().ListSnapshots(c.cfg.Snapshot.Dir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(c.out, "No backups found.")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tCREATED AT\tCOMPRESSION\tSIZE\tORIGINAL")
	fmt.Fprintln(w, "--\t------\t----------\t-----------\t----\t--------")
	for _, s := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			s.ID,
			s.Source,
			s.CreatedAt.Format("2006-01-02 15:04:05 MST"),
			s.Compression,
			s.Size,
			s.OriginalSize,
		)
	}
	return w.Flush()
}

// verifyBackups validates every archive in the backup directory, a few at a
// time, and reports each failure.
func (c *cli) verifyBackups(ctx context.Context) error {
	mgr := c.snapshotManager()
	infos, err := mgr.ListSnapshots(c.cfg.Snapshot.Dir)
	if err != nil {
		return err
	}

	results := make([]error, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelVerify)
	for i, info := range infos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = mgr.Validate(info.Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed int
	for i, info := range infos {
		status := "ok"
		if results[i] != nil {
			status = results[i].Error()
			failed++
		}
		fmt.Fprintf(c.out, "%s: %s\n", info.ID, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed validation", failed, len(infos))
	}
	return nil
}

func (c *cli) restore(ctx context.Context, args []string) error {
	var archive string
	for _, a := range args {
		switch a {
		case "-y", "-yes", "--yes":
			c.assumeYes = true
		default:
			archive = a
		}
	}
	if archive == "" {
		return fmt.Errorf("%w: restore takes an archive path", errUsage)
	}
	if !filepath.IsAbs(archive) {
		if _, err := os.Stat(archive); err != nil {
			archive = filepath.Join(c.cfg.Snapshot.Dir, archive)
		}
	}

	if !c.assumeYes {
		if !isTerminal(c.in) {
			return fmt.Errorf("refusing to overwrite %s without a terminal; pass -yes", c.cfg.Engine.Path)
		}
		fmt.Fprintf(c.out, "Replace %s with %s? [y/N] ", c.cfg.Engine.Path, archive)
		answer, _ := bufio.NewReader(c.in).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			return errors.New("restore aborted")
		}
	}

	info, err := c.snapshotManager().Restore(ctx, archive, c.cfg.Engine.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "restored %s from %s (%d bytes)\n", c.cfg.Engine.Path, info.ID, info.OriginalSize)
	return nil
}
