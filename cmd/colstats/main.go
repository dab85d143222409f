package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/config"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "colstats:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "colstats",
		Short: "colstats - streaming column statistics for CSV data",
		Long: `colstats computes per-column statistics of CSV data: inferred type, min, max,
mean and standard deviation, and optionally median, mode and cardinality.
Indexed files are split across workers; everything else is read in one pass.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a YAML configuration file")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log encoding (console, json)")

	root.AddCommand(
		newVersionCommand(),
		newStatsCommand(),
		newIndexCommand(),
		newConfigCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "colstats v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration resolved from the defaults, the --config file and
COLSTATS_* environment variables. With --write the result is saved to a file
that can be passed back with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, nil)
			if err != nil {
				return err
			}
			dest, err := cmd.Flags().GetString("write")
			if err != nil {
				return err
			}
			if dest == "" {
				return config.Write(cmd.OutOrStdout(), cfg)
			}
			if err := config.Save(dest, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "configuration written to %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringP("write", "w", "", "Save the configuration to this path instead of printing it")
	return cmd
}

// resolveConfig layers defaults, the --config file, the environment and
// the flags of cmd. A positional argument names the input.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		v.Set("input.path", args[0])
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Resolve(v, path)
}

// exitCode is 2 for usage and configuration errors, 1 otherwise.
func exitCode(err error) int {
	if colerrors.IsType(err, colerrors.ErrorTypeConfig) {
		return 2
	}
	return 1
}
