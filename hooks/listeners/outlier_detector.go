package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/stampdb/hooks"
)

// Thresholds defines the min/max acceptable values for a column.
type Thresholds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// OutlierRule binds thresholds to a data column by header name.
type OutlierRule struct {
	Column     string     `yaml:"column"`
	Thresholds Thresholds `yaml:",inline"`
}

// OutlierDetectionListener logs appended numeric values that fall outside
// configured thresholds. It can optionally reject them.
type OutlierDetectionListener struct {
	logger  *slog.Logger
	headers []string
	rules   map[int]Thresholds // keyed by data column index
	reject  bool
}

// ErrOutlier is returned from PreAppend when rejection is enabled.
var ErrOutlier = fmt.Errorf("value outside configured thresholds")

// NewOutlierDetectionListener resolves rules against headers (timestamp
// column first). Rules naming unknown columns are logged and ignored.
func NewOutlierDetectionListener(logger *slog.Logger, headers []string, rules []OutlierRule, reject bool) *OutlierDetectionListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "OutlierDetectionListener")

	ruleMap := make(map[int]Thresholds)
	for _, rule := range rules {
		found := false
		for i := 1; i < len(headers); i++ {
			if headers[i] == rule.Column {
				ruleMap[i-1] = rule.Thresholds
				found = true
				break
			}
		}
		if !found {
			logger.Warn("Outlier rule references unknown column", "column", rule.Column)
		}
	}

	return &OutlierDetectionListener{
		logger:  logger,
		headers: headers,
		rules:   ruleMap,
		reject:  reject,
	}
}

// OnEvent inspects PreAppend events.
func (l *OutlierDetectionListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPreAppend {
		return nil
	}

	payload, ok := event.Payload().(hooks.PreAppendPayload)
	if !ok || payload.Record == nil {
		l.logger.Error("Received PreAppend event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	rec := payload.Record
	for idx, thresholds := range l.rules {
		if idx >= len(rec.Cells) {
			continue
		}
		value, isNumeric := rec.Cells[idx].Numeric()
		if !isNumeric {
			continue
		}
		if value < thresholds.Min || value > thresholds.Max {
			l.logger.Warn("Outlier detected",
				"time", rec.Time,
				"column", l.headers[idx+1],
				"value", value,
				"min_threshold", thresholds.Min,
				"max_threshold", thresholds.Max,
			)
			if l.reject {
				return fmt.Errorf("%w: column %s value %v", ErrOutlier, l.headers[idx+1], value)
			}
		}
	}
	return nil
}

func (l *OutlierDetectionListener) Priority() int { return 100 }

func (l *OutlierDetectionListener) IsAsync() bool { return false }
