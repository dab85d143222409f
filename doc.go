// Package colstats computes exact per-column statistics over CSV data in a
// single streaming pass, or in parallel chunks when the file is indexed.
//
// For every selected column it reports the inferred type, min, max, mean
// and population standard deviation, and on request the median, mode and
// cardinality.
//
// # Architecture
//
// 1. Type Lattice: every field is classified as NULL, Integer, Float or
// Unicode, and a column's type is the join of its fields' types
// (pkg/stats).
//
// 2. Mergeable Aggregates: a column aggregate combines Welford's online
// mean and variance, typed min/max trackers and optional exact sample
// buffers. Aggregates built over disjoint row ranges merge into the
// aggregate of their concatenation (pkg/stats).
//
// 3. Execution Engine: a sequential pass for streams, or a worker pool
// over index-planned chunks whose results are folded in chunk order, so
// parallel and sequential runs agree (internal/engine).
//
// 4. Finalization: median, mode and cardinality are extracted per column,
// in parallel across columns.
//
// # Quick Start
//
// Index a file once, then compute statistics with eight workers:
//
//	colstats index data.csv
//	colstats stats --everything --jobs 8 data.csv
//
// Or use the engine directly:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/colstats/internal/csvsource"
//	    "github.com/ajitpratap0/colstats/internal/engine"
//	    "github.com/ajitpratap0/colstats/pkg/stats"
//	)
//
//	in, err := csvsource.Open("data.csv", csvsource.Options{}, logger)
//	if err != nil {
//	    return err
//	}
//	defer in.Close()
//
//	eng := engine.New(engine.Options{Which: stats.DefaultWhich()}, logger)
//	headers, records, err := eng.Compute(context.Background(), in)
//
// # Packages
//
//   - pkg/stats: type lattice, online statistics, range trackers, sample buffers
//   - internal/engine: sequential and parallel execution, finalization
//   - internal/csvsource: CSV files, compressed files, standard input
//   - pkg/csvindex: record offset indexes for random access
//   - pkg/selection: column selection expressions
//   - pkg/output: CSV, JSON and YAML rendering
//   - pkg/config: layered configuration (file, environment, flags)
//   - pkg/logger, pkg/metrics, pkg/observability: zap logging,
//     Prometheus metrics and OpenTelemetry tracing
package colstats
