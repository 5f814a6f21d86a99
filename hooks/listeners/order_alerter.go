package listeners

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/INLOpen/stampdb/hooks"
)

// OutOfOrderAlerterListener warns when an appended record is older than
// the newest timestamp seen so far. Out-of-order appends are legal but move
// the file away from time order until the next compaction.
type OutOfOrderAlerterListener struct {
	logger *slog.Logger

	mu      sync.Mutex
	maxTime float64
	count   int64
}

func NewOutOfOrderAlerterListener(logger *slog.Logger) *OutOfOrderAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OutOfOrderAlerterListener{
		logger:  logger.With("component", "OutOfOrderAlerterListener"),
		maxTime: math.Inf(-1),
	}
}

// OnEvent handles PostOpen to seed the high-water mark and PostAppend to
// compare against it.
func (l *OutOfOrderAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch payload := event.Payload().(type) {
	case hooks.PostOpenPayload:
		if payload.Records > 0 && payload.MaxTime > l.maxTime {
			l.maxTime = payload.MaxTime
		}
	case hooks.PostAppendPayload:
		ts := payload.Record.Time
		if ts < l.maxTime {
			l.count++
			l.logger.Warn("Out-of-order append",
				"time", ts,
				"newest_time", l.maxTime,
				"position", payload.Position,
			)
			return nil
		}
		l.maxTime = ts
	}
	return nil
}

// OutOfOrderCount returns the number of out-of-order appends observed.
func (l *OutOfOrderAlerterListener) OutOfOrderCount() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *OutOfOrderAlerterListener) Priority() int { return 100 }

func (l *OutOfOrderAlerterListener) IsAsync() bool { return true }
