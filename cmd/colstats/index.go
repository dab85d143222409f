package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colstats/internal/csvsource"
	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/compression"
	"github.com/ajitpratap0/colstats/pkg/csvindex"
	"github.com/ajitpratap0/colstats/pkg/logger"
)

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <input>",
		Short: "Index a CSV file for parallel statistics",
		Long: `Write the byte offset of every record of <input> to <input>.idx so "colstats
stats" can split the file across workers. The index is ignored once the input
is modified; run this command again to refresh it. Compressed files cannot be
indexed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, args)
			if err != nil {
				return err
			}
			if err := initLogger(cfg); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.With(zap.String("component", "colstats-cli"), zap.String("input", cfg.Input.Path))

			path := cfg.Input.Path
			if path == csvsource.StdinPath {
				return colerrors.New(colerrors.ErrorTypeConfig, "standard input cannot be indexed")
			}
			if alg := compression.Detect(path); alg != compression.None {
				return colerrors.New(colerrors.ErrorTypeConfig, "compressed files cannot be indexed").
					WithDetail("path", path).
					WithDetail("compression", string(alg))
			}
			comma, err := cfg.Input.Comma()
			if err != nil {
				return err
			}
			opts := csvsource.Options{
				Delimiter:  comma,
				LazyQuotes: cfg.Input.LazyQuotes,
				IndexPath:  cfg.Input.IndexPath,
			}
			idxPath := cfg.Input.IndexPath
			if idxPath == "" {
				idxPath = csvindex.Path(path)
			}

			start := time.Now()
			n, err := csvindex.Create(path, idxPath, opts.IndexOptions())
			if err != nil {
				return err
			}
			log.Info("index written",
				zap.String("index", idxPath),
				zap.String("records", humanize.Comma(n)),
				zap.Duration("elapsed", time.Since(start)))
			fmt.Fprintf(cmd.ErrOrStderr(), "indexed %s records into %s\n", humanize.Comma(n), idxPath)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("delimiter", "d", ",", "Field delimiter, a single character or 'tab'")
	f.Bool("lazy-quotes", false, "Tolerate quotes inside unquoted fields")
	f.String("index", "", "Index path (default <input>.idx)")
	return cmd
}
