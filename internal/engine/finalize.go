package engine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/colstats/pkg/metrics"
	"github.com/ajitpratap0/colstats/pkg/observability"
	"github.com/ajitpratap0/colstats/pkg/stats"
)

// Finalize extracts the record of every column on a pool of Workers()
// goroutines, one task per column. Records are returned in column order.
// The columns must not be used afterwards.
func (e *Engine) Finalize(ctx context.Context, cols []*stats.Column) (records []stats.Record, err error) {
	ctx, span := observability.StartSpan(ctx, "colstats.finalize")
	span.SetAttribute("columns", len(cols))
	defer func() { span.Finish(err) }()

	timer := metrics.NewTimer()
	records = make([]stats.Record, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers())
	for i, col := range cols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := metrics.NewTimer()
			records[i] = col.Record()
			e.metrics.ObserveFinalize(t.Stop())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	observability.Logger(ctx, e.logger).Debug("columns finalized",
		zap.Int("columns", len(cols)),
		zap.Duration("elapsed", timer.Stop()))
	return records, nil
}
