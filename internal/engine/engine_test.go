package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	"github.com/ajitpratap0/colstats/pkg/metrics"
	"github.com/ajitpratap0/colstats/pkg/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memSource serves rows from memory. Reading row failAt fails.
type memSource struct {
	headers []string
	rows    [][]string
	failAt  int64
	opened  atomic.Int32
}

func newMemSource(headers []string, rows ...[]string) *memSource {
	return &memSource{headers: headers, rows: rows, failAt: -1}
}

func (s *memSource) Headers() ([]string, error) {
	return s.headers, nil
}

func (s *memSource) Rows(ctx context.Context) (RowIterator, error) {
	s.opened.Add(1)
	return &memIter{src: s}, nil
}

type memIter struct {
	src *memSource
	pos int64
}

func (it *memIter) Next() (Row, error) {
	if it.pos == it.src.failAt {
		return nil, errors.New("malformed row")
	}
	if it.pos >= int64(len(it.src.rows)) {
		return nil, io.EOF
	}
	fields := it.src.rows[it.pos]
	it.pos++
	row := make(Row, len(fields))
	for i, f := range fields {
		row[i] = []byte(f)
	}
	return row, nil
}

func (it *memIter) Close() error { return nil }

// indexedSource adds the seek capability to memSource. count overrides the
// reported row count when non-negative.
type indexedSource struct {
	*memSource
	count int64
}

func newIndexedSource(headers []string, rows ...[]string) *indexedSource {
	return &indexedSource{memSource: newMemSource(headers, rows...), count: -1}
}

func (s *indexedSource) Count() (int64, error) {
	if s.count >= 0 {
		return s.count, nil
	}
	return int64(len(s.rows)), nil
}

func (s *indexedSource) OpenAt(ctx context.Context, offset int64) (RowIterator, error) {
	s.opened.Add(1)
	return &memIter{src: s.memSource, pos: offset}, nil
}

type selectFunc func(headers []string) ([]int, error)

func (f selectFunc) Select(headers []string) ([]int, error) { return f(headers) }

func numericRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{strconv.Itoa(i), strconv.Itoa(i % 7), "v" + strconv.Itoa(i%3)}
		if i%5 == 0 {
			rows[i][1] = ""
		}
	}
	return rows
}

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		workers int
		want    []Chunk
	}{
		{"even", 8, 4, []Chunk{{0, 0, 2}, {1, 2, 2}, {2, 4, 2}, {3, 6, 2}}},
		{"short last chunk", 10, 3, []Chunk{{0, 0, 4}, {1, 4, 4}, {2, 8, 2}}},
		{"fewer rows than workers", 3, 8, []Chunk{{0, 0, 1}, {1, 1, 1}, {2, 2, 1}}},
		{"uneven drops a chunk", 5, 4, []Chunk{{0, 0, 2}, {1, 2, 2}, {2, 4, 1}}},
		{"single worker", 5, 1, []Chunk{{0, 0, 5}}},
		{"no rows", 0, 4, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanChunks(tt.rows, ChunkSize(tt.rows, tt.workers)))
		})
	}
}

func TestPlanChunksCoverRows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rows := rapid.Int64Range(0, 10_000).Draw(t, "rows")
		workers := rapid.IntRange(1, 64).Draw(t, "workers")

		size := ChunkSize(rows, workers)
		chunks := PlanChunks(rows, size)
		if rows > 0 && int64(len(chunks)) != (rows+size-1)/size {
			t.Fatalf("chunk count %d for %d rows of size %d", len(chunks), rows, size)
		}
		if len(chunks) > workers {
			t.Fatalf("%d chunks for %d workers", len(chunks), workers)
		}
		var next int64
		for i, c := range chunks {
			if c.Index != i || c.Start != next || c.Len < 1 || c.Len > size {
				t.Fatalf("bad chunk %+v after row %d", c, next)
			}
			next += c.Len
		}
		if next != rows {
			t.Fatalf("chunks cover %d of %d rows", next, rows)
		}
	})
}

func TestComputeEndToEnd(t *testing.T) {
	src := newMemSource([]string{"a", "b", "c"},
		[]string{"1", "2", "x"},
		[]string{"", "3", "y"},
	)
	sel := selectFunc(func([]string) ([]int, error) { return []int{0, 1}, nil })
	e := New(Options{Which: stats.DefaultWhich(), Jobs: 4, Select: sel}, zap.NewNop())

	headers, records, err := e.Compute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, headers)
	assert.Equal(t, []stats.Record{
		{"Integer", "1", "1", "1", "0"},
		{"Integer", "2", "3", "2.5", "0.5"},
	}, records)
}

func TestRunChoosesStrategy(t *testing.T) {
	rows := numericRows(20)
	w := stats.DefaultWhich()

	res, err := New(Options{Which: w, Jobs: 4}, nil).Run(context.Background(), newMemSource([]string{"a", "b", "c"}, rows...))
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, res.Strategy)
	assert.Equal(t, int64(20), res.Rows)

	res, err = New(Options{Which: w, Jobs: 1}, nil).Run(context.Background(), newIndexedSource([]string{"a", "b", "c"}, rows...))
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, res.Strategy)

	src := newIndexedSource([]string{"a", "b", "c"}, rows...)
	res, err = New(Options{Which: w, Jobs: 4}, nil).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, StrategyParallel, res.Strategy)
	assert.Equal(t, int64(20), res.Rows)
	// one independent reader per chunk
	assert.Equal(t, int32(4), src.opened.Load())
}

func TestParallelMatchesSequential(t *testing.T) {
	w := stats.Which{Range: true, Dist: true, Median: true, Mode: true, Cardinality: true}
	headers := []string{"id", "bucket", "label"}

	rapid.Check(t, func(t *rapid.T) {
		rows := numericRows(rapid.IntRange(0, 300).Draw(t, "rows"))
		jobs := rapid.IntRange(2, 8).Draw(t, "jobs")
		chunkRows := rapid.Int64Range(0, 40).Draw(t, "chunkRows")
		w.IncludeNulls = rapid.Bool().Draw(t, "includeNulls")

		_, want, err := New(Options{Which: w, Jobs: 1}, nil).
			Compute(context.Background(), newIndexedSource(headers, rows...))
		if err != nil {
			t.Fatalf("sequential: %v", err)
		}
		_, got, err := New(Options{Which: w, Jobs: jobs, ChunkRows: chunkRows}, nil).
			Compute(context.Background(), newIndexedSource(headers, rows...))
		if err != nil {
			t.Fatalf("parallel: %v", err)
		}

		if len(got) != len(want) {
			t.Fatalf("%d records, want %d", len(got), len(want))
		}
		for i := range want {
			for j := range want[i] {
				if j == 3 || j == 4 {
					if !closeText(want[i][j], got[i][j]) {
						t.Fatalf("column %d field %d: got %q, want %q", i, j, got[i][j], want[i][j])
					}
					continue
				}
				if want[i][j] != got[i][j] {
					t.Fatalf("column %d field %d: got %q, want %q", i, j, got[i][j], want[i][j])
				}
			}
		}
	})
}

func TestMoreChunksThanWorkersMatchesOneWorker(t *testing.T) {
	rows := numericRows(97)
	w := stats.Which{Range: true, Dist: true, Median: true, Mode: true, Cardinality: true}
	sel := []int{2, 0, 1, 0}

	run := func(workers int) []stats.Record {
		e := New(Options{Which: w, Jobs: workers, ChunkRows: 5}, nil)
		src := newIndexedSource([]string{"a", "b", "c"}, rows...)
		cols, n, err := e.runParallel(context.Background(), src, sel, workers, zap.NewNop())
		require.NoError(t, err)
		require.Equal(t, int64(97), n)
		records, err := e.Finalize(context.Background(), cols)
		require.NoError(t, err)
		return records
	}

	assert.Equal(t, run(1), run(3))
}

func TestSelectionReordersAndDuplicates(t *testing.T) {
	src := newIndexedSource([]string{"a", "b"},
		[]string{"1", "x"},
		[]string{"2", "y"},
		[]string{"3", "z"},
	)
	sel := selectFunc(func([]string) ([]int, error) { return []int{1, 0, 1}, nil })

	headers, records, err := New(Options{Which: stats.DefaultWhich(), Jobs: 2, Select: sel}, nil).
		Compute(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "b"}, headers)
	require.Len(t, records, 3)
	assert.Equal(t, stats.Record{"Unicode", "x", "z", "", ""}, records[0])
	assert.Equal(t, stats.Record{"Integer", "1", "3", "2", "0.816496580927726"}, records[1])
	assert.Equal(t, records[0], records[2])
}

func TestSelectionErrors(t *testing.T) {
	src := newMemSource([]string{"a"}, []string{"1"})

	_, err := New(Options{Select: selectFunc(func([]string) ([]int, error) { return []int{3}, nil })}, nil).
		Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, colerrors.IsType(err, colerrors.ErrorTypeConfig))

	boom := errors.New("unknown column")
	_, err = New(Options{Select: selectFunc(func([]string) ([]int, error) { return nil, boom })}, nil).
		Run(context.Background(), src)
	assert.ErrorIs(t, err, boom)
}

func TestMissingColumnIsDataError(t *testing.T) {
	rows := [][]string{{"1", "2"}, {"3"}}

	for _, src := range []Source{
		newMemSource([]string{"a", "b"}, rows...),
		newIndexedSource([]string{"a", "b"}, rows...),
	} {
		_, err := New(Options{Which: stats.DefaultWhich(), Jobs: 2}, nil).Run(context.Background(), src)
		require.Error(t, err)
		assert.True(t, colerrors.IsType(err, colerrors.ErrorTypeData))
	}
}

func TestWorkerFailureAborts(t *testing.T) {
	src := newIndexedSource([]string{"a", "b", "c"}, numericRows(100)...)
	src.failAt = 57
	m := metrics.NewCollector()

	_, err := New(Options{Which: stats.DefaultWhich(), Jobs: 4, ChunkRows: 10, Metrics: m}, nil).
		Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, colerrors.IsType(err, colerrors.ErrorTypeData))
	assert.Contains(t, err.Error(), "malformed row")

	n, gatherErr := testutil.GatherAndCount(m.Registry(), "colstats_chunks_processed_total")
	require.NoError(t, gatherErr)
	assert.GreaterOrEqual(t, n, 1)
}

func TestSequentialFailureAborts(t *testing.T) {
	src := newMemSource([]string{"a", "b", "c"}, numericRows(10)...)
	src.failAt = 3

	_, err := New(Options{Which: stats.DefaultWhich()}, nil).Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, colerrors.IsType(err, colerrors.ErrorTypeData))
}

func TestIndexLongerThanInput(t *testing.T) {
	src := newIndexedSource([]string{"a", "b", "c"}, numericRows(10)...)
	src.count = 12

	_, err := New(Options{Which: stats.DefaultWhich(), Jobs: 3}, nil).Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, colerrors.IsType(err, colerrors.ErrorTypeData))
}

func TestEmptyInput(t *testing.T) {
	for _, src := range []Source{
		newMemSource([]string{"a", "b"}),
		newIndexedSource([]string{"a", "b"}),
	} {
		w := stats.Which{Range: true, Dist: true, Mode: true}
		headers, records, err := New(Options{Which: w, Jobs: 2}, nil).Compute(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, headers)
		assert.Equal(t, []stats.Record{
			{"Integer", "", "", "", "", stats.ModeNotAvailable},
			{"Integer", "", "", "", "", stats.ModeNotAvailable},
		}, records)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Which: stats.DefaultWhich(), Jobs: 2}, nil).
		Run(ctx, newIndexedSource([]string{"a", "b", "c"}, numericRows(50)...))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(Options{Which: stats.DefaultWhich(), Jobs: 1}, nil).
		Run(ctx, newMemSource([]string{"a", "b", "c"}, numericRows(50)...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRecordsMetrics(t *testing.T) {
	m := metrics.NewCollector()
	_, _, err := New(Options{Which: stats.DefaultWhich(), Jobs: 2, Metrics: m}, nil).
		Compute(context.Background(), newIndexedSource([]string{"a", "b", "c"}, numericRows(10)...))
	require.NoError(t, err)

	expected := `
# HELP colstats_rows_processed_total Total number of rows fed to column aggregates
# TYPE colstats_rows_processed_total counter
colstats_rows_processed_total{strategy="parallel"} 10
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "colstats_rows_processed_total"))
}

func TestFinalizeKeepsColumnOrder(t *testing.T) {
	w := stats.Which{Range: true, Cardinality: true}
	cols := stats.NewColumns(50, w)
	for i, c := range cols {
		for j := 0; j <= i; j++ {
			require.NoError(t, c.Add([]byte(strconv.Itoa(j))))
		}
	}

	records, err := New(Options{Which: w, Jobs: 4}, nil).Finalize(context.Background(), cols)
	require.NoError(t, err)
	require.Len(t, records, 50)
	for i, rec := range records {
		assert.Equal(t, strconv.Itoa(i), rec[2], "max of column %d", i)
		assert.Equal(t, strconv.Itoa(i+1), rec[5], "cardinality of column %d", i)
	}
}

func closeText(want, got string) bool {
	if want == got {
		return true
	}
	w, err1 := strconv.ParseFloat(want, 64)
	g, err2 := strconv.ParseFloat(got, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	return math.Abs(w-g) <= 1e-9*math.Max(1, math.Abs(w))
}
