// Package engine computes column statistics over a row source, either in
// one sequential pass or in parallel chunks when the source can seek.
package engine

import (
	"context"
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/metrics"
	"github.com/ajitpratap0/colstats/pkg/observability"
	"github.com/ajitpratap0/colstats/pkg/stats"
)

// Strategy names used in logs and metrics.
const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
)

// cancelCheckInterval is how many rows a pass reads between context checks.
const cancelCheckInterval = 4096

// Options configures an Engine.
type Options struct {
	// Which selects the statistics computed for every column.
	Which stats.Which
	// Jobs is the worker count. 0 means one per available CPU; 1 forces
	// the sequential strategy.
	Jobs int
	// ChunkRows overrides the chunk size of the parallel strategy, which
	// otherwise is ceil(rows/Jobs).
	ChunkRows int64
	// Select resolves the columns to aggregate. Nil selects every column.
	Select Selector
	// Metrics receives run metrics. Nil creates a private collector.
	Metrics *metrics.Collector
}

// Result is the merged, not yet finalized, state of one run.
type Result struct {
	// Headers holds the label of every selected column, in selection order.
	Headers []string
	// Columns holds one aggregate per selected column.
	Columns []*stats.Column
	// Rows is the number of data rows read.
	Rows int64
	// Strategy is StrategySequential or StrategyParallel.
	Strategy string
}

// Engine runs statistics computations. It holds no per-run state and can
// be reused.
type Engine struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates an engine.
func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Select == nil {
		opts.Select = allColumns{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Engine{
		opts:    opts,
		logger:  logger.With(zap.String("component", "engine")),
		metrics: m,
	}
}

// Workers is the resolved size of the worker pool.
func (e *Engine) Workers() int {
	if e.opts.Jobs > 0 {
		return e.opts.Jobs
	}
	return runtime.NumCPU()
}

// Compute runs the statistics over src and finalizes them. It returns the
// labels of the selected columns and one record per column, both in
// selection order.
func (e *Engine) Compute(ctx context.Context, src Source) ([]string, []stats.Record, error) {
	res, err := e.Run(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.Finalize(ctx, res.Columns)
	if err != nil {
		return nil, nil, err
	}
	return res.Headers, records, nil
}

// Run aggregates src into one column vector. The parallel strategy is used
// when src implements Indexed and more than one worker is configured.
func (e *Engine) Run(ctx context.Context, src Source) (res *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "colstats.run")
	defer func() { span.Finish(err) }()

	headers, err := src.Headers()
	if err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeData, "failed to read headers")
	}
	sel, err := e.opts.Select.Select(headers)
	if err != nil {
		return nil, err
	}
	for _, col := range sel {
		if col < 0 || col >= len(headers) {
			return nil, colerrors.New(colerrors.ErrorTypeConfig, "selected column out of range").
				WithDetail("column", col).
				WithDetail("columns", len(headers))
		}
	}

	res = &Result{Headers: make([]string, len(sel))}
	for i, col := range sel {
		res.Headers[i] = headers[col]
	}

	workers := e.Workers()
	e.metrics.ObserveRun(len(sel), workers)
	span.SetAttribute("columns", len(sel))
	span.SetAttribute("workers", workers)

	logger := observability.Logger(ctx, e.logger)
	start := time.Now()
	tracker := e.metrics.NewThroughputTracker()

	idx, indexed := src.(Indexed)
	switch {
	case indexed && workers != 1:
		res.Strategy = StrategyParallel
		res.Columns, res.Rows, err = e.runParallel(ctx, idx, sel, workers, logger)
	default:
		if !indexed && workers != 1 {
			logger.Debug("source has no index, falling back to a sequential pass",
				zap.Int("workers", workers))
			span.AddEvent("sequential_fallback", attribute.Int("workers", workers))
		}
		res.Strategy = StrategySequential
		res.Columns, res.Rows, err = e.runSequential(ctx, src, sel)
	}
	if err != nil {
		return nil, err
	}

	tracker.Increment(res.Rows)
	e.metrics.AddRows(res.Strategy, res.Rows)
	span.SetAttribute("strategy", res.Strategy)
	span.SetAttribute("rows", res.Rows)

	logger.Info("statistics computed",
		zap.String("strategy", res.Strategy),
		zap.String("rows", humanize.Comma(res.Rows)),
		zap.Int("columns", len(sel)),
		zap.Float64("rows_per_second", tracker.GetAndReset()),
		zap.Duration("elapsed", time.Since(start)))

	return res, nil
}

func (e *Engine) runSequential(ctx context.Context, src Source, sel []int) ([]*stats.Column, int64, error) {
	it, err := src.Rows(ctx)
	if err != nil {
		return nil, 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to open rows")
	}
	defer it.Close()

	cols := stats.NewColumns(len(sel), e.opts.Which)
	var n int64
	for {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, n, err
			}
		}
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			return cols, n, nil
		}
		if err != nil {
			return nil, n, colerrors.Wrap(err, colerrors.ErrorTypeData, "failed to read row").
				WithDetail("row", n)
		}
		if err := feed(cols, sel, row, n); err != nil {
			return nil, n, err
		}
		n++
	}
}

type chunkResult struct {
	chunk Chunk
	cols  []*stats.Column
}

// runParallel aggregates one chunk per task, at most workers at a time.
// Completed vectors reach a single collector that folds them in chunk
// order, so the result does not depend on completion order.
func (e *Engine) runParallel(ctx context.Context, idx Indexed, sel []int, workers int, logger *zap.Logger) ([]*stats.Column, int64, error) {
	total, err := idx.Count()
	if err != nil {
		return nil, 0, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to count rows")
	}
	size := e.opts.ChunkRows
	if size <= 0 {
		size = ChunkSize(total, workers)
	}
	chunks := PlanChunks(total, size)
	logger.Debug("planned chunks",
		zap.String("rows", humanize.Comma(total)),
		zap.Int("chunks", len(chunks)),
		zap.Int64("chunk_size", size),
		zap.Int("workers", workers))

	if len(chunks) == 0 {
		return stats.NewColumns(len(sel), e.opts.Which), 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make(chan chunkResult)
	merged := make(chan error, 1)
	var acc []*stats.Column
	go func() {
		merged <- e.collect(results, len(chunks), &acc)
	}()

	for _, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cols, err := e.runChunk(gctx, idx, sel, c, logger)
			if err != nil {
				return err
			}
			results <- chunkResult{chunk: c, cols: cols}
			return nil
		})
	}

	err = g.Wait()
	close(results)
	if mergeErr := <-merged; err == nil {
		err = mergeErr
	}
	if err != nil {
		return nil, 0, err
	}
	return acc, total, nil
}

// collect folds delivered vectors in chunk order. Vectors that arrive
// early wait until every chunk before them has been folded. It drains
// results even after a merge failure so no worker blocks.
func (e *Engine) collect(results <-chan chunkResult, count int, acc *[]*stats.Column) error {
	pending := make(map[int][]*stats.Column, count)
	next := 0
	var err error
	for r := range results {
		if err != nil {
			continue
		}
		pending[r.chunk.Index] = r.cols
		for {
			cols, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if next == 0 {
				*acc = cols
			} else if err = stats.MergeAll(*acc, cols); err != nil {
				break
			}
			next++
		}
	}
	return err
}

func (e *Engine) runChunk(ctx context.Context, idx Indexed, sel []int, c Chunk, logger *zap.Logger) (cols []*stats.Column, err error) {
	ctx, span := observability.StartSpan(ctx, "colstats.chunk")
	span.SetAttribute("chunk", c.Index)
	span.SetAttribute("start", c.Start)
	span.SetAttribute("rows", c.Len)
	timer := metrics.NewTimer()
	defer func() {
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusFailure
		}
		e.metrics.ObserveChunk(status, timer.Stop())
		span.Finish(err)
	}()

	it, err := idx.OpenAt(ctx, c.Start)
	if err != nil {
		return nil, colerrors.Wrap(err, colerrors.ErrorTypeFile, "failed to seek").
			WithDetail("chunk", c.Index).
			WithDetail("row", c.Start)
	}
	defer it.Close()

	cols = stats.NewColumns(len(sel), e.opts.Which)
	for i := int64(0); i < c.Len; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rowNum := c.Start + i
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil, colerrors.New(colerrors.ErrorTypeData, "input ended before the end of the chunk").
				WithDetail("chunk", c.Index).
				WithDetail("row", rowNum)
		}
		if err != nil {
			return nil, colerrors.Wrap(err, colerrors.ErrorTypeData, "failed to read row").
				WithDetail("chunk", c.Index).
				WithDetail("row", rowNum)
		}
		if err := feed(cols, sel, row, rowNum); err != nil {
			return nil, err
		}
	}

	logger.Debug("chunk done",
		zap.Int("chunk", c.Index),
		zap.Int64("start", c.Start),
		zap.Int64("rows", c.Len),
		zap.Duration("elapsed", timer.Stop()))
	return cols, nil
}

// feed adds the selected fields of row to cols.
func feed(cols []*stats.Column, sel []int, row Row, rowNum int64) error {
	for i, col := range sel {
		if col >= len(row) {
			return colerrors.New(colerrors.ErrorTypeData, "row is missing a selected column").
				WithDetail("row", rowNum).
				WithDetail("column", col).
				WithDetail("fields", len(row))
		}
		if err := cols[i].Add(row[col]); err != nil {
			return colerrors.Wrap(err, colerrors.ErrorTypeInternal, "failed to aggregate field").
				WithDetail("row", rowNum).
				WithDetail("column", col)
		}
	}
	return nil
}
