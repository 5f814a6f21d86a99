// Command stampctl reads and modifies a StampDB data file from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/INLOpen/stampdb/config"
	"github.com/INLOpen/stampdb/engine"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/INLOpen/stampdb/hooks/listeners"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const usage = `Usage: stampctl [flags] <command> [args]

Commands:
  read <time>                     print the record at time
  range <start> <end>             print records with start <= time <= end (use -inf/inf for open bounds)
  append <time> <value>...        add a record
  update <time> <value>...        replace or add the record at time
  delete <time>                   remove the record at time
  checkpoint                      flush pending appends
  compact                         rewrite the file without deleted records
  stats                           print engine statistics
  export <out.parquet>            write all records to a Parquet file
  backup                          write a compressed backup archive and prune old ones
  backups                         list backup archives
  verify                          validate every backup archive
  restore <archive>               replace the data file with an archive

Flags:
`

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		// stdout carries command output, so logs go to stderr.
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider creates an OpenTelemetry TracerProvider exporting to the
// configured OTLP collector. With tracing disabled it returns a provider with
// no exporter.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("stampctl")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}
	return tp, cleanup, nil
}

// buildHooks registers the listeners enabled in cfg.
func buildHooks(cfg config.HooksConfig, headers []string, logger *slog.Logger) hooks.HookManager {
	hm := hooks.NewHookManager(logger)
	if len(cfg.Outliers.Rules) > 0 {
		rules := make([]listeners.OutlierRule, 0, len(cfg.Outliers.Rules))
		for _, r := range cfg.Outliers.Rules {
			rules = append(rules, listeners.OutlierRule{Column: r.Column, Thresholds: listeners.Thresholds{Min: r.Min, Max: r.Max}})
		}
		hm.Register(hooks.EventPreAppend, listeners.NewOutlierDetectionListener(logger, headers, rules, cfg.Outliers.Reject))
	}
	if cfg.OutOfOrderAlerts {
		alerter := listeners.NewOutOfOrderAlerterListener(logger)
		hm.Register(hooks.EventPostOpen, alerter)
		hm.Register(hooks.EventPostAppend, alerter)
	}
	if cfg.WriteAmplification {
		hm.Register(hooks.EventPostCompaction, listeners.NewWriteAmplificationListener(logger))
	}
	return hm
}

// engineOptions maps configuration onto engine.Options.
func engineOptions(cfg *config.Config, logger *slog.Logger, hm hooks.HookManager, tp *sdktrace.TracerProvider) (engine.Options, error) {
	schema, err := cfg.Engine.BuildSchema()
	if err != nil {
		return engine.Options{}, err
	}
	threshold := cfg.Engine.CheckpointThreshold
	if threshold == 0 {
		threshold = -1
	}
	retries := cfg.Engine.PublishRetries
	if retries == 0 {
		retries = -1
	}
	opts := engine.Options{
		Path:                cfg.Engine.Path,
		Headers:             cfg.Engine.Headers,
		Schema:              schema,
		CheckpointThreshold: threshold,
		PublishRetries:      retries,
		PublishBackoff:      config.ParseDuration(cfg.Engine.PublishBackoff, engine.DefaultPublishBackoff, logger),
		Inference:           cfg.Engine.InferencePolicy(),
		LockFile:            cfg.Engine.LockFile,
		LockTimeout:         config.ParseDuration(cfg.Engine.LockTimeout, engine.DefaultLockTimeout, logger),
		SpaceCheck:          cfg.Engine.SpaceCheck,
		Logger:              logger,
		HookManager:         hm,
		TracerProvider:      tp,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = engine.NewEngineMetrics(true, cfg.Metrics.Prefix)
	}
	return opts, nil
}

func main() {
	flags := flag.NewFlagSet("stampctl", flag.ExitOnError)
	configPath := flags.String("config", "stampdb.yaml", "Path to the configuration file")
	dataPath := flags.String("path", "", "Data file path (overrides engine.path)")
	format := flags.String("format", "auto", "Output format: auto, table, csv or json")
	logLevel := flags.String("log-level", "", "Logging level (overrides logging.level)")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataPath != "" {
		cfg.Engine.Path = *dataPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli{
		cfg:    cfg,
		logger: logger,
		tp:     tp,
		out:    os.Stdout,
		in:     os.Stdin,
		format: resolveFormat(*format, os.Stdout),
	}
	err = app.run(ctx, flags.Arg(0), flags.Args()[1:])
	stop()
	tracerCleanup()
	if err != nil {
		if errors.Is(err, errUsage) {
			flags.Usage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
