package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/INLOpen/stampdb/hooks"
)

// compactionVarName is the expvar map the listener publishes into.
const compactionVarName = "stampdb_compaction_rewrites"

// WriteAmplificationListener accumulates the size of every compaction
// rewrite. Compaction reads the whole primary file and writes the surviving
// rows back, so the ratio written/read shows how much of each rewrite was
// spent on live data, and read-written the space reclaimed from deletes.
type WriteAmplificationListener struct {
	logger *slog.Logger

	rewrites     atomic.Int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

var _ hooks.HookListener = (*WriteAmplificationListener)(nil)

// NewWriteAmplificationListener returns a listener for EventPostCompaction.
// The most recently created listener backs the published expvar map.
func NewWriteAmplificationListener(logger *slog.Logger) *WriteAmplificationListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &WriteAmplificationListener{logger: logger.With("component", "WriteAmplificationListener")}
	l.publish()
	return l
}

func (l *WriteAmplificationListener) publish() {
	m, ok := expvar.Get(compactionVarName).(*expvar.Map)
	if !ok {
		m = expvar.NewMap(compactionVarName)
	}
	m.Set("rewrites", expvar.Func(func() any { return l.rewrites.Load() }))
	m.Set("bytes_read", expvar.Func(func() any { return l.bytesRead.Load() }))
	m.Set("bytes_written", expvar.Func(func() any { return l.bytesWritten.Load() }))
	m.Set("bytes_reclaimed", expvar.Func(func() any { return l.Reclaimed() }))
	m.Set("ratio", expvar.Func(func() any { return l.Ratio() }))
}

// Ratio returns total bytes written over total bytes read, or 0 before the
// first compaction.
func (l *WriteAmplificationListener) Ratio() float64 {
	read := l.bytesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(l.bytesWritten.Load()) / float64(read)
}

// Reclaimed returns the bytes removed from the primary file by compaction.
func (l *WriteAmplificationListener) Reclaimed() int64 {
	return l.bytesRead.Load() - l.bytesWritten.Load()
}

// Rewrites returns the number of successful compactions observed.
func (l *WriteAmplificationListener) Rewrites() int64 {
	return l.rewrites.Load()
}

func (l *WriteAmplificationListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	payload, ok := event.Payload().(hooks.PostCompactionPayload)
	if !ok || payload.Error != nil {
		return nil
	}

	l.rewrites.Add(1)
	l.bytesRead.Add(payload.BytesBefore)
	l.bytesWritten.Add(payload.BytesAfter)

	l.logger.Info("Compaction rewrite recorded",
		"path", payload.Path,
		"records", payload.Records,
		"bytes_before", payload.BytesBefore,
		"bytes_after", payload.BytesAfter,
		"duration", payload.Duration,
		"ratio", l.Ratio(),
	)
	return nil
}

func (l *WriteAmplificationListener) Priority() int { return 100 }

func (l *WriteAmplificationListener) IsAsync() bool { return true }
