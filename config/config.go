package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/INLOpen/stampdb/core"
	"gopkg.in/yaml.v3"
)

// ColumnConfig declares one data column of an optional schema.
type ColumnConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "bool", "int", "float" or "text"
}

// EngineConfig holds the settings of a single data file.
type EngineConfig struct {
	Path                string         `yaml:"path"`
	Headers             []string       `yaml:"headers"` // used when the file must be created
	Schema              []ColumnConfig `yaml:"schema"`
	CheckpointThreshold int            `yaml:"checkpoint_threshold"` // 0 disables automatic checkpoints
	PublishRetries      int            `yaml:"publish_retries"` // extra rename attempts; 0 means a single attempt
	PublishBackoff      string         `yaml:"publish_backoff"`
	Inference           string         `yaml:"inference"` // "int_first" or "float_first"
	LockFile            bool           `yaml:"lock_file"`
	LockTimeout         string         `yaml:"lock_timeout"`
	SpaceCheck          bool           `yaml:"space_check"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// SnapshotConfig controls backups.
type SnapshotConfig struct {
	Dir            string `yaml:"dir"`
	Compression    string `yaml:"compression"` // "none", "snappy", "lz4" or "zstd"
	KeepN          int    `yaml:"keep_n"`
	PruneOlderThan string `yaml:"prune_older_than"`
}

// ExportConfig controls columnar export.
type ExportConfig struct {
	TextWidth int `yaml:"text_width"`
}

// MetricsConfig controls expvar publication.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// OutlierRuleConfig bounds the numeric values accepted for a column.
type OutlierRuleConfig struct {
	Column string  `yaml:"column"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// OutlierConfig configures the outlier-detection hook.
type OutlierConfig struct {
	Reject bool                `yaml:"reject"`
	Rules  []OutlierRuleConfig `yaml:"rules"`
}

// HooksConfig enables the built-in listeners.
type HooksConfig struct {
	Outliers           OutlierConfig `yaml:"outliers"`
	OutOfOrderAlerts   bool          `yaml:"out_of_order_alerts"`
	WriteAmplification bool          `yaml:"write_amplification"`
}

// TracingConfig holds configuration for OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317"
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Hooks    HooksConfig    `yaml:"hooks"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Path:                "./data.csv",
			CheckpointThreshold: 10,
			PublishRetries:      5,
			PublishBackoff:      "50ms",
			Inference:           core.InferIntFirst.String(),
			LockFile:            false,
			LockTimeout:         "1s",
			SpaceCheck:          true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Output: "stdout",
			File:   "stampdb.log",
		},
		Snapshot: SnapshotConfig{
			Dir:         "./backups",
			Compression: "zstd",
			KeepN:       0,
		},
		Export: ExportConfig{
			TextWidth: 64,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Prefix:  "stampdb_",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate rejects values that would only fail later at open time.
func (c *Config) Validate() error {
	if c.Engine.CheckpointThreshold < 0 {
		return fmt.Errorf("engine.checkpoint_threshold must be >= 0, got %d", c.Engine.CheckpointThreshold)
	}
	if c.Engine.PublishRetries < 0 {
		return fmt.Errorf("engine.publish_retries must be >= 0, got %d", c.Engine.PublishRetries)
	}
	if _, err := core.ParseInferencePolicy(c.Engine.Inference); err != nil {
		return fmt.Errorf("engine.inference: %w", err)
	}
	if _, err := core.ParseCompressionType(c.Snapshot.Compression); err != nil {
		return fmt.Errorf("snapshot.compression: %w", err)
	}
	if _, err := c.Engine.BuildSchema(); err != nil {
		return err
	}
	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Protocol) {
		case "grpc", "http":
		default:
			return fmt.Errorf("tracing.protocol must be grpc or http, got %q", c.Tracing.Protocol)
		}
	}
	return nil
}

// InferencePolicy returns the parsed inference policy.
func (e EngineConfig) InferencePolicy() core.InferencePolicy {
	p, err := core.ParseInferencePolicy(e.Inference)
	if err != nil {
		return core.InferIntFirst
	}
	return p
}

// BuildSchema converts the configured columns into a core.Schema, using the
// first header as the time column. It returns nil when no schema is set.
func (e EngineConfig) BuildSchema() (*core.Schema, error) {
	if len(e.Schema) == 0 {
		return nil, nil
	}
	s := &core.Schema{TimeColumn: core.DefaultTimeColumn}
	if len(e.Headers) > 0 {
		s.TimeColumn = e.Headers[0]
	}
	for _, c := range e.Schema {
		kind, err := core.ParseCellKind(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("engine.schema column %q: %w", c.Name, err)
		}
		s.Columns = append(s.Columns, core.ColumnSchema{Name: c.Name, Kind: kind})
	}
	return s, nil
}
