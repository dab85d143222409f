package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestOnlineStatsEmpty(t *testing.T) {
	o := NewOnlineStats()
	assert.Zero(t, o.Len())
	assert.True(t, math.IsNaN(o.Mean()))
	assert.True(t, math.IsNaN(o.Stddev()))
}

func TestOnlineStatsDirect(t *testing.T) {
	o := NewOnlineStats()
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		o.Add(v)
	}
	assert.Equal(t, uint64(8), o.Len())
	assert.InDelta(t, 5.0, o.Mean(), 1e-12)
	assert.InDelta(t, 4.0, o.Variance(), 1e-12)
	assert.InDelta(t, 2.0, o.Stddev(), 1e-12)
}

func TestOnlineStatsNulls(t *testing.T) {
	o := NewOnlineStats()
	o.Add(2)
	o.Add(4)
	o.AddNull()
	o.AddNull()

	// population is {2, 4, 0, 0}
	assert.Equal(t, uint64(4), o.Len())
	assert.InDelta(t, 1.5, o.Mean(), 1e-12)
	assert.InDelta(t, 2.75, o.Variance(), 1e-12)

	nullsOnly := NewOnlineStats()
	nullsOnly.AddNull()
	assert.Equal(t, uint64(1), nullsOnly.Len())
	assert.Equal(t, 0.0, nullsOnly.Mean())
	assert.Equal(t, 0.0, nullsOnly.Stddev())
}

func TestOnlineStatsMergeEmpty(t *testing.T) {
	o := NewOnlineStats()
	o.Add(3)
	o.Merge(NewOnlineStats())
	o.Merge(nil)
	assert.Equal(t, uint64(1), o.Len())
	assert.Equal(t, 3.0, o.Mean())

	empty := NewOnlineStats()
	empty.Merge(o)
	assert.Equal(t, 3.0, empty.Mean())
	assert.Equal(t, 0.0, empty.Stddev())
}

func TestOnlineStatsMergeMatchesDirectPass(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 1, 200).Draw(t, "values")
		nulls := rapid.SliceOfN(rapid.Bool(), len(values), len(values)).Draw(t, "nulls")
		cuts := rapid.SliceOfN(rapid.IntRange(0, len(values)), 0, 6).Draw(t, "cuts")

		direct := NewOnlineStats()
		for i, v := range values {
			if nulls[i] {
				direct.AddNull()
			} else {
				direct.Add(v)
			}
		}

		merged := NewOnlineStats()
		for _, part := range split(len(values), cuts) {
			chunk := NewOnlineStats()
			for i := part[0]; i < part[1]; i++ {
				if nulls[i] {
					chunk.AddNull()
				} else {
					chunk.Add(values[i])
				}
			}
			merged.Merge(chunk)
		}

		if merged.Len() != direct.Len() {
			t.Fatalf("len %d != %d", merged.Len(), direct.Len())
		}
		assertClose(t, direct.Mean(), merged.Mean())
		assertClose(t, direct.Stddev(), merged.Stddev())
	})
}

func TestCombineSymmetric(t *testing.T) {
	n1, m1, q1 := combine(3, 2, 8, 5, -1, 4)
	n2, m2, q2 := combine(5, -1, 4, 3, 2, 8)
	require.Equal(t, n1, n2)
	assert.InDelta(t, m1, m2, 1e-12)
	assert.InDelta(t, q1, q2, 1e-12)
}

// split turns sorted-or-not cut points into contiguous [start, end) ranges
// covering [0, n).
func split(n int, cuts []int) [][2]int {
	points := append([]int{0}, cuts...)
	points = append(points, n)
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j] < points[j-1]; j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
	parts := make([][2]int, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		parts = append(parts, [2]int{points[i-1], points[i]})
	}
	return parts
}

func assertClose(t *rapid.T, want, got float64) {
	if math.IsNaN(want) && math.IsNaN(got) {
		return
	}
	tol := 1e-9 * math.Max(1, math.Abs(want))
	if math.Abs(want-got) > tol {
		t.Fatalf("got %v, want %v", got, want)
	}
}
