package engine

import "context"

// Row is one input record: an ordered sequence of raw fields. Iterators
// may reuse the backing memory of a Row on the next call to Next.
type Row [][]byte

// RowIterator yields rows until it returns io.EOF. It is finite and cannot
// be restarted.
type RowIterator interface {
	Next() (Row, error)
	Close() error
}

// Source is a sequential row source.
type Source interface {
	// Headers returns the column labels. It does not consume data rows.
	Headers() ([]string, error)
	// Rows opens an iterator over every data row.
	Rows(ctx context.Context) (RowIterator, error)
}

// Indexed is the optional random-access capability of a Source. Every
// OpenAt call returns an independent iterator positioned at the data row
// with the given zero-based offset, so workers never share a reader.
type Indexed interface {
	Source
	// Count is the total number of data rows.
	Count() (int64, error)
	OpenAt(ctx context.Context, offset int64) (RowIterator, error)
}

// Selector resolves a column selection against the header row into an
// ordered list of column positions. Positions may repeat and need not be
// increasing.
type Selector interface {
	Select(headers []string) ([]int, error)
}

// allColumns selects every column in order.
type allColumns struct{}

func (allColumns) Select(headers []string) ([]int, error) {
	sel := make([]int, len(headers))
	for i := range sel {
		sel[i] = i
	}
	return sel, nil
}
