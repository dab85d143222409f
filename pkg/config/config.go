// Package config provides the configuration of a colstats run.
//
// The configuration is organized into logical sections:
//   - Input: path, CSV dialect, column selection, index location
//   - Stats: which optional statistics to compute and how nulls count
//   - Output: destination, format and compression
//   - Performance: worker count and chunk size
//   - Observability: logging, metrics and tracing
//
// Values are layered by Resolve: defaults, then a YAML config file, then
// COLSTATS_* environment variables, then command line flags.
package config

import (
	"runtime"
	"unicode/utf8"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/compression"
	"github.com/ajitpratap0/colstats/pkg/stats"
	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the full configuration of a run.
type Config struct {
	// Input describes where rows come from and how they are parsed
	Input InputConfig `yaml:"input" json:"input" mapstructure:"input"`

	// Stats selects the statistics computed for every column
	Stats StatsConfig `yaml:"stats" json:"stats" mapstructure:"stats"`

	// Output describes where records go
	Output OutputConfig `yaml:"output" json:"output" mapstructure:"output"`

	// Performance controls parallelism
	Performance PerformanceConfig `yaml:"performance" json:"performance" mapstructure:"performance"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// InputConfig describes the input file and its CSV dialect.
type InputConfig struct {
	// Path of the input, "-" for standard input
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Select is a column selection such as "1-3,name"
	Select string `yaml:"select" json:"select" mapstructure:"select"`
	// Delimiter is a single character, or "tab"
	Delimiter string `yaml:"delimiter" json:"delimiter" mapstructure:"delimiter"`
	// NoHeaders treats the first row as data
	NoHeaders bool `yaml:"no_headers" json:"no_headers" mapstructure:"no_headers"`
	// Flexible allows rows of varying width
	Flexible bool `yaml:"flexible" json:"flexible" mapstructure:"flexible"`
	// LazyQuotes tolerates stray quotes
	LazyQuotes bool `yaml:"lazy_quotes" json:"lazy_quotes" mapstructure:"lazy_quotes"`
	// IndexPath overrides <path>.idx
	IndexPath string `yaml:"index_path" json:"index_path" mapstructure:"index_path"`
}

// StatsConfig selects the optional statistics.
type StatsConfig struct {
	Mode        bool `yaml:"mode" json:"mode" mapstructure:"mode"`
	Median      bool `yaml:"median" json:"median" mapstructure:"median"`
	Cardinality bool `yaml:"cardinality" json:"cardinality" mapstructure:"cardinality"`
	// Everything enables mode, median and cardinality
	Everything bool `yaml:"everything" json:"everything" mapstructure:"everything"`
	// IncludeNulls counts empty fields as zero in mean and stddev
	IncludeNulls bool `yaml:"include_nulls" json:"include_nulls" mapstructure:"include_nulls"`
	// EmptyAsNull reports columns without values as NULL instead of Integer
	EmptyAsNull bool `yaml:"empty_as_null" json:"empty_as_null" mapstructure:"empty_as_null"`
}

// OutputConfig describes the output.
type OutputConfig struct {
	// Path of the output, "-" for standard output
	Path string `yaml:"path" json:"path" mapstructure:"path"`
	// Format is csv, json or yaml
	Format string `yaml:"format" json:"format" mapstructure:"format"`
	// Compression overrides detection from the output extension
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
}

// PerformanceConfig controls parallelism.
type PerformanceConfig struct {
	// Jobs is the worker count; 0 means one per logical CPU
	Jobs int `yaml:"jobs" json:"jobs" mapstructure:"jobs"`
	// ChunkRows overrides the rows per parallel chunk
	ChunkRows int64 `yaml:"chunk_rows" json:"chunk_rows" mapstructure:"chunk_rows"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogFormat is console or json
	LogFormat string `yaml:"log_format" json:"log_format" mapstructure:"log_format"`
	// MetricsFile receives run metrics in the Prometheus text format
	MetricsFile string `yaml:"metrics_file" json:"metrics_file" mapstructure:"metrics_file"`
	// Trace exports spans to standard error
	Trace bool `yaml:"trace" json:"trace" mapstructure:"trace"`
	// TraceSampleRate controls trace sampling (0.0-1.0)
	TraceSampleRate float64 `yaml:"trace_sample_rate" json:"trace_sample_rate" mapstructure:"trace_sample_rate"`
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Input: InputConfig{
			Path:      "-",
			Delimiter: ",",
		},
		Output: OutputConfig{
			Path:   "-",
			Format: FormatCSV,
		},
		Observability: ObservabilityConfig{
			LogLevel:        "warn",
			LogFormat:       "console",
			TraceSampleRate: 1.0,
		},
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if _, err := c.Input.Comma(); err != nil {
		return err
	}
	switch c.Output.Format {
	case FormatCSV, FormatJSON, FormatYAML:
	default:
		return invalid("output.format", c.Output.Format, "must be csv, json or yaml")
	}
	if _, err := compression.ParseAlgorithm(c.Output.Compression); err != nil {
		return colerrors.Wrap(err, colerrors.ErrorTypeConfig, "invalid output.compression")
	}
	if c.Performance.Jobs < 0 {
		return invalid("performance.jobs", c.Performance.Jobs, "cannot be negative")
	}
	if c.Performance.ChunkRows < 0 {
		return invalid("performance.chunk_rows", c.Performance.ChunkRows, "cannot be negative")
	}
	if _, err := zapcore.ParseLevel(c.Observability.LogLevel); err != nil {
		return invalid("observability.log_level", c.Observability.LogLevel, "unknown level")
	}
	switch c.Observability.LogFormat {
	case "console", "json":
	default:
		return invalid("observability.log_format", c.Observability.LogFormat, "must be console or json")
	}
	if r := c.Observability.TraceSampleRate; r < 0 || r > 1 {
		return invalid("observability.trace_sample_rate", r, "must be between 0 and 1")
	}
	return nil
}

func invalid(key string, value interface{}, msg string) error {
	return colerrors.New(colerrors.ErrorTypeConfig, key+" "+msg).
		WithDetail("key", key).
		WithDetail("value", value)
}

// Comma returns the field delimiter as a rune.
func (i *InputConfig) Comma() (rune, error) {
	d := i.Delimiter
	switch stringpool.ToLower(d) {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, invalid("input.delimiter", d, "must be a single character other than a quote or newline")
	}
	return r, nil
}

// Which returns the statistics selection.
func (s *StatsConfig) Which() stats.Which {
	return stats.Which{
		Range:        true,
		Dist:         true,
		Mode:         s.Mode || s.Everything,
		Median:       s.Median || s.Everything,
		Cardinality:  s.Cardinality || s.Everything,
		IncludeNulls: s.IncludeNulls,
		EmptyAsNull:  s.EmptyAsNull,
	}
}

// GetJobs returns the worker count, defaulting to the logical CPU count.
func (p *PerformanceConfig) GetJobs() int {
	if p.Jobs > 0 {
		return p.Jobs
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
