package stats

import (
	"cmp"
	"math"
	"strconv"
	"strings"

	"github.com/ajitpratap0/colstats/pkg/colerrors"
	stringpool "github.com/ajitpratap0/colstats/pkg/strings"
)

// MinMax tracks the smallest and largest value seen in one ordered domain.
type MinMax[T cmp.Ordered] struct {
	min, max T
	seen     bool
}

// Add widens the bounds to include v. Values are ordered by cmp.Less, so
// a float NaN sorts below every other value.
func (m *MinMax[T]) Add(v T) {
	if !m.seen {
		m.min, m.max, m.seen = v, v, true
		return
	}
	if cmp.Less(v, m.min) {
		m.min = v
	}
	if cmp.Less(m.max, v) {
		m.max = v
	}
}

// Merge widens the bounds to include everything other has seen.
func (m *MinMax[T]) Merge(other MinMax[T]) {
	if !other.seen {
		return
	}
	m.Add(other.min)
	m.Add(other.max)
}

// Bounds returns the current bounds; ok is false until a value was added.
func (m MinMax[T]) Bounds() (min, max T, ok bool) {
	return m.min, m.max, m.seen
}

// TypedMinMax keeps minimum and maximum values for every domain where
// ordering makes sense. Which one is reported depends on the column type
// at finalization.
type TypedMinMax struct {
	strs   MinMax[string]
	ints   MinMax[int64]
	floats MinMax[float64]
}

// NewTypedMinMax returns an empty tracker.
func NewTypedMinMax() *TypedMinMax {
	return &TypedMinMax{}
}

// Add records sample, whose own inferred type is typ. Empty samples are
// ignored. Float samples widen the float domain and, when finite, the
// integer domain (truncated); integer samples widen only the integer
// domain. A numeric typ whose sample does not parse means inference and
// parsing disagree, which is reported as an internal error.
func (t *TypedMinMax) Add(typ FieldType, sample []byte) error {
	if len(sample) == 0 {
		return nil
	}
	s := stringpool.BytesToString(sample)
	if lo, hi, seen := t.strs.Bounds(); !seen || s < lo || s > hi {
		t.strs.Add(strings.Clone(s))
	}
	switch typ {
	case Float:
		n, err := parseFloat(s)
		if err != nil {
			return parseMismatch(typ, sample, err)
		}
		t.floats.Add(n)
		if !math.IsNaN(n) && !math.IsInf(n, 0) {
			t.ints.Add(int64(n))
		}
	case Integer:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return parseMismatch(typ, sample, err)
		}
		t.ints.Add(n)
	}
	return nil
}

// Merge folds other into t domain by domain.
func (t *TypedMinMax) Merge(other *TypedMinMax) {
	if other == nil {
		return
	}
	t.strs.Merge(other.strs)
	t.ints.Merge(other.ints)
	t.floats.Merge(other.floats)
}

// Show renders the bounds relevant to typ. Text columns report the byte
// string bounds decoded lossily; numeric columns report the bounds of the
// matching numeric domain. ok is false when that domain saw nothing.
func (t *TypedMinMax) Show(typ FieldType) (min, max string, ok bool) {
	switch typ {
	case Unicode, Unknown:
		lo, hi, seen := t.strs.Bounds()
		if !seen {
			return "", "", false
		}
		return stringpool.ToValidUTF8(lo), stringpool.ToValidUTF8(hi), true
	case Integer:
		lo, hi, seen := t.ints.Bounds()
		if !seen {
			return "", "", false
		}
		return strconv.FormatInt(lo, 10), strconv.FormatInt(hi, 10), true
	case Float:
		lo, hi, seen := t.floats.Bounds()
		if !seen {
			return "", "", false
		}
		return formatFloat(lo), formatFloat(hi), true
	default:
		return "", "", false
	}
}

func parseMismatch(typ FieldType, sample []byte, err error) error {
	return colerrors.Wrap(err, colerrors.ErrorTypeInternal, "sample classified as "+typ.String()+" failed to parse").
		WithDetail("sample", string(sample))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
