package config

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
)

// EnvPrefix prefixes environment overrides, e.g. COLSTATS_STATS_MEDIAN=true.
const EnvPrefix = "COLSTATS"

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"select":            "input.select",
	"delimiter":         "input.delimiter",
	"no-headers":        "input.no_headers",
	"flexible":          "input.flexible",
	"lazy-quotes":       "input.lazy_quotes",
	"index":             "input.index_path",
	"mode":              "stats.mode",
	"median":            "stats.median",
	"cardinality":       "stats.cardinality",
	"everything":        "stats.everything",
	"nulls":             "stats.include_nulls",
	"empty-as-null":     "stats.empty_as_null",
	"output":            "output.path",
	"format":            "output.format",
	"compression":       "output.compression",
	"jobs":              "performance.jobs",
	"chunk-rows":        "performance.chunk_rows",
	"log-level":         "observability.log_level",
	"log-format":        "observability.log_format",
	"metrics-file":      "observability.metrics_file",
	"trace":             "observability.trace",
	"trace-sample-rate": "observability.trace_sample_rate",
}

// NewViper returns a viper instance holding the defaults of NewConfig and
// reading COLSTATS_* environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	if err := setDefaults(v, NewConfig()); err != nil {
		panic(err) // NewConfig always marshals
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key of cfg so environment variables can
// override keys that no file or flag sets.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var sections map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return err
	}
	for section, values := range sections {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}
	return nil
}

// BindFlags binds the flags of FlagKeys present in flags. A flag only
// overrides the file and environment when it is set explicitly.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to bind flag").
				WithDetail("flag", name)
		}
	}
	return nil
}

// Resolve merges the YAML file at path, if any, into v and returns the
// validated configuration. ${VAR} references in the file are replaced by
// environment values.
func Resolve(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
		if err != nil {
			return nil, colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
		v.SetConfigType("yaml")
		if err := v.MergeConfig(strings.NewReader(substituteEnvVars(string(data)))); err != nil {
			return nil, colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to parse config file").
				WithDetail("path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration at path over the defaults and environment.
func Load(path string) (*Config, error) {
	return Resolve(NewViper(), path)
}

// Write encodes cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return colerrors.Wrap(err, colerrors.ErrorTypeConfig, "failed to marshal YAML")
	}
	return enc.Close()
}

// Save writes cfg to a YAML file.
func Save(path string, cfg *Config) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to write config file").
			WithDetail("path", path)
	}
	if err := Write(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Substituted values are copied verbatim and never expanded again.
func substituteEnvVars(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
