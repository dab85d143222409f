package stats

import (
	"strconv"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// ModeNotAvailable is rendered as the mode of a column with no samples.
const ModeNotAvailable = "N/A"

// Record is one finalized output row: type, min, max, mean, stddev and
// then median, mode and cardinality when enabled.
type Record []string

// Column aggregates every statistic selected by its Which for one column.
// A Column is owned by a single goroutine; independent Columns for the same
// column are combined with Merge.
type Column struct {
	typ      FieldType
	nonEmpty bool

	minmax *TypedMinMax
	online *OnlineStats
	values *Unsorted[string]
	nums   *Unsorted[float64]

	which Which
}

// NewColumn returns an empty aggregate with exactly the sub-aggregators w
// enables.
func NewColumn(w Which) *Column {
	c := &Column{typ: InitialType, which: w}
	if w.Range {
		c.minmax = NewTypedMinMax()
	}
	if w.Dist {
		c.online = NewOnlineStats()
	}
	if w.Mode || w.Cardinality {
		c.values = NewUnsorted[string]()
	}
	if w.Median {
		c.nums = NewUnsorted[float64]()
	}
	return c
}

// NewColumns returns n empty aggregates sharing w.
func NewColumns(n int, w Which) []*Column {
	cols := make([]*Column, n)
	for i := range cols {
		cols[i] = NewColumn(w)
	}
	return cols
}

// Which returns the configuration the column was built with.
func (c *Column) Which() Which {
	return c.which
}

// Type is the inferred type reported for the column.
func (c *Column) Type() FieldType {
	if !c.nonEmpty && c.which.EmptyAsNull {
		return Null
	}
	return c.typ
}

// Add feeds one field. The sample's own type is joined into the running
// type first and the updated running type decides whether the sample
// reaches the numeric aggregators. Range domains follow the sample's own
// type so that bounds do not depend on where the input was split.
func (c *Column) Add(sample []byte) error {
	st := Infer(sample)
	c.typ = Join(c.typ, st)
	if !st.IsNull() {
		c.nonEmpty = true
	}

	if c.minmax != nil {
		if err := c.minmax.Add(st, sample); err != nil {
			return err
		}
	}
	if c.values != nil {
		c.values.Add(string(sample))
	}
	if !c.typ.IsNumber() {
		return nil
	}

	if st.IsNull() {
		if c.which.IncludeNulls && c.online != nil {
			c.online.AddNull()
		}
		return nil
	}
	n, err := parseFloat(stringpool.BytesToString(sample))
	if err != nil {
		return parseMismatch(c.typ, sample, err)
	}
	if c.nums != nil {
		c.nums.Add(n)
	}
	if c.online != nil {
		c.online.Add(n)
	}
	return nil
}

// Merge folds other into c. Both must have been built from the same Which;
// otherwise nothing is merged and an internal error wrapping
// colerrors.ErrConfigMismatch is returned.
func (c *Column) Merge(other *Column) error {
	if other == nil {
		return nil
	}
	if c.which != other.which {
		return colerrors.Wrap(colerrors.ErrConfigMismatch, colerrors.ErrorTypeInternal, "cannot merge column aggregates").
			WithDetail("left", c.which).
			WithDetail("right", other.which)
	}
	c.typ = Join(c.typ, other.typ)
	c.nonEmpty = c.nonEmpty || other.nonEmpty
	if c.minmax != nil {
		c.minmax.Merge(other.minmax)
	}
	if c.online != nil {
		c.online.Merge(other.online)
	}
	if c.values != nil {
		c.values.Merge(other.values)
	}
	if c.nums != nil {
		c.nums.Merge(other.nums)
	}
	return nil
}

// MergeAll folds every vector in rest into acc column by column. All
// vectors must have the same length.
func MergeAll(acc []*Column, rest ...[]*Column) error {
	for _, cols := range rest {
		if len(cols) != len(acc) {
			return colerrors.New(colerrors.ErrorTypeInternal, "cannot merge column vectors of different length").
				WithDetail("left", len(acc)).
				WithDetail("right", len(cols))
		}
		for i := range acc {
			if err := acc[i].Merge(cols[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Record extracts the output row. Median, mode and cardinality are
// computed here; the column should not be fed afterwards.
func (c *Column) Record() Record {
	typ := c.Type()
	rec := make(Record, 0, 8)
	rec = append(rec, typ.String())

	lo, hi, ok := "", "", false
	if c.minmax != nil {
		lo, hi, ok = c.minmax.Show(typ)
	}
	if ok {
		rec = append(rec, lo, hi)
	} else {
		rec = append(rec, "", "")
	}

	if typ.IsNumber() && c.online != nil && c.online.Len() > 0 {
		rec = append(rec, formatFloat(c.online.Mean()), formatFloat(c.online.Stddev()))
	} else {
		rec = append(rec, "", "")
	}

	if c.which.Median {
		med := ""
		if typ.IsNumber() && c.nums != nil {
			if v, ok := Median(c.nums); ok {
				med = formatFloat(v)
			}
		}
		rec = append(rec, med)
	}
	if c.which.Mode {
		mode := ModeNotAvailable
		if v, ok := c.values.Mode(); ok {
			mode = stringpool.ToValidUTF8(v)
		}
		rec = append(rec, mode)
	}
	if c.which.Cardinality {
		rec = append(rec, strconv.Itoa(c.values.Cardinality()))
	}
	return rec
}
