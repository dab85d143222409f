package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colstats/internal/csvsource"
	"github.com/ajitpratap0/colstats/internal/engine"
	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/compression"
	"github.com/ajitpratap0/colstats/pkg/config"
	"github.com/ajitpratap0/colstats/pkg/logger"
	"github.com/ajitpratap0/colstats/pkg/metrics"
	"github.com/ajitpratap0/colstats/pkg/observability"
	"github.com/ajitpratap0/colstats/pkg/output"
	"github.com/ajitpratap0/colstats/pkg/performance"
	"github.com/ajitpratap0/colstats/pkg/selection"
	"github.com/ajitpratap0/colstats/pkg/stats"
)

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [input]",
		Short: "Compute column statistics",
		Long: `Compute statistics for every selected column of a CSV file or of standard
input. Type, min, max, mean and stddev are always reported; median, mode and
cardinality buffer every value and must be requested.

When <input>.idx exists and is not older than the input, the file is split
into chunks that are aggregated in parallel. Create the index with
"colstats index".

Example:
  colstats stats --select 'name,3-5' --everything --jobs 8 data.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			return runStats(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringP("select", "s", "", "Columns to aggregate, e.g. 'name,3,5-7', or '!id' for all but id (default all)")
	f.StringP("delimiter", "d", ",", "Field delimiter, a single character or 'tab'")
	f.BoolP("no-headers", "n", false, "Treat the first row as data and label columns by position")
	f.Bool("flexible", false, "Allow rows with a varying number of fields")
	f.Bool("lazy-quotes", false, "Tolerate quotes inside unquoted fields")
	f.String("index", "", "Index path (default <input>.idx)")
	f.Bool("mode", false, "Compute the mode; buffers every value")
	f.Bool("median", false, "Compute the median; buffers every numeric value")
	f.Bool("cardinality", false, "Count distinct values; buffers every value")
	f.Bool("everything", false, "Compute mode, median and cardinality")
	f.Bool("nulls", false, "Count empty fields as zero in mean and stddev")
	f.Bool("empty-as-null", false, "Report NULL for columns without any value")
	f.StringP("output", "o", "-", "Output path; compression follows the extension")
	f.String("format", "csv", "Output format (csv, json, yaml)")
	f.String("compression", "", "Output compression (none, gzip, zstd, snappy, s2, lz4)")
	f.IntP("jobs", "j", 0, "Worker count; 0 uses every CPU, 1 forces one sequential pass")
	f.Int64("chunk-rows", 0, "Rows per parallel chunk (default rows/jobs)")
	f.String("metrics-file", "", "Write run metrics in the Prometheus text format")
	f.Bool("trace", false, "Export trace spans to standard error")
	f.Float64("trace-sample-rate", 1.0, "Fraction of traces to sample")
	return cmd
}

func initLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to initialize logger")
	}
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx = context.WithValue(ctx, logger.RunIDKey, strconv.FormatInt(time.Now().UnixNano(), 36))
	ctx = context.WithValue(ctx, logger.InputKey, cfg.Input.Path)
	log := logger.WithContext(ctx).With(zap.String("component", "colstats-cli"))

	if cfg.Observability.Trace {
		tc := observability.DefaultTracingConfig(version)
		tc.SamplingRate = cfg.Observability.TraceSampleRate
		shutdown, err := observability.InitTracing(tc)
		if err != nil {
			return colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to initialize tracing")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	sel, err := selection.Parse(cfg.Input.Select)
	if err != nil {
		return err
	}
	comma, err := cfg.Input.Comma()
	if err != nil {
		return err
	}

	in, err := csvsource.Open(cfg.Input.Path, csvsource.Options{
		Delimiter:  comma,
		NoHeaders:  cfg.Input.NoHeaders,
		Flexible:   cfg.Input.Flexible,
		LazyQuotes: cfg.Input.LazyQuotes,
		IndexPath:  cfg.Input.IndexPath,
	}, log)
	if err != nil {
		return err
	}
	defer in.Close()

	which := cfg.Stats.Which()
	monitor, err := performance.NewResourceMonitor()
	if err != nil {
		log.Debug("resource monitoring unavailable", zap.Error(err))
	}
	warnMemory(log, cfg.Input.Path, which)

	collector := metrics.NewCollector()
	eng := engine.New(engine.Options{
		Which:     which,
		Jobs:      cfg.Performance.GetJobs(),
		ChunkRows: cfg.Performance.ChunkRows,
		Select:    sel,
		Metrics:   collector,
	}, log)

	start := time.Now()
	headers, records, err := eng.Compute(ctx, in)
	if err != nil {
		return err
	}
	table, err := output.NewTable(which, headers, records)
	if err != nil {
		return err
	}

	w, err := openOutput(cfg, stdout)
	if err != nil {
		return err
	}
	if err := output.Write(w, cfg.Output.Format, table); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to close output")
	}

	if path := cfg.Observability.MetricsFile; path != "" {
		if err := collector.WriteToTextfile(path); err != nil {
			return colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write metrics").
				WithDetail("path", path)
		}
	}

	fields := []zap.Field{
		zap.Int("columns", len(headers)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("format", cfg.Output.Format),
	}
	if monitor != nil {
		usage := monitor.Usage()
		fields = append(fields,
			zap.String("peak_rss", humanize.Bytes(usage.PeakRSS)),
			zap.Float64("cpu_percent", usage.CPUPercent))
	}
	log.Info("done", fields...)
	return nil
}

// warnMemory warns when buffered statistics over a file are likely to
// exceed the memory available.
func warnMemory(log *zap.Logger, path string, which stats.Which) {
	if !which.Buffered() || path == csvsource.StdinPath {
		return
	}
	info, err := os.Stat(path)
	if err != nil || compression.Detect(path) != compression.None {
		return
	}
	avail := performance.AvailableMemory()
	if avail > 0 && uint64(info.Size()) > avail {
		log.Warn("mode, median and cardinality keep every value in memory and the input is larger than the available memory",
			zap.String("input_size", humanize.Bytes(uint64(info.Size()))),
			zap.String("available", humanize.Bytes(avail)))
	}
}

// openOutput opens the configured output. Standard output is wrapped, not
// closed.
func openOutput(cfg *config.Config, stdout io.Writer) (io.WriteCloser, error) {
	var alg compression.Algorithm
	if cfg.Output.Compression != "" {
		parsed, err := compression.ParseAlgorithm(cfg.Output.Compression)
		if err != nil {
			return nil, colerrors.Wrap(err, colerrors.ErrorTypeConfig, "invalid output compression")
		}
		alg = parsed
	}
	if cfg.Output.Path == "" || cfg.Output.Path == output.StdoutPath {
		if alg == "" {
			alg = compression.None
		}
		w, err := compression.OpenWriter(alg, compression.Default, stdout)
		if err != nil {
			return nil, colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to open output compressor")
		}
		return w, nil
	}
	return output.Create(cfg.Output.Path, alg, compression.Default)
}
