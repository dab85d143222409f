package stats

import "math"

// OnlineStats computes a running mean and variance in one pass using
// Welford's update, and merges partial results with the pairwise
// combination of Chan, Golub and LeVeque.
//
// Null observations are counted separately and never touch the running
// moments. When any were recorded the readers treat them as zero-valued
// members of the population.
type OnlineStats struct {
	size  uint64
	nulls uint64
	mean  float64
	q     float64
}

// NewOnlineStats returns an empty accumulator.
func NewOnlineStats() *OnlineStats {
	return &OnlineStats{}
}

// Add records one numeric sample.
func (o *OnlineStats) Add(sample float64) {
	o.size++
	delta := sample - o.mean
	o.mean += delta / float64(o.size)
	o.q += delta * (sample - o.mean)
}

// AddNull records one null observation.
func (o *OnlineStats) AddNull() {
	o.nulls++
}

// Merge folds other into o. The result is the same as a single pass over
// both sample sets, up to floating point rounding.
func (o *OnlineStats) Merge(other *OnlineStats) {
	if other == nil {
		return
	}
	o.nulls += other.nulls
	o.size, o.mean, o.q = combine(o.size, o.mean, o.q, other.size, other.mean, other.q)
}

// Len is the population size: non-null samples plus recorded nulls.
func (o *OnlineStats) Len() uint64 {
	return o.size + o.nulls
}

// Mean is the population mean, NaN when the population is empty.
func (o *OnlineStats) Mean() float64 {
	n, mean, _ := o.moments()
	if n == 0 {
		return math.NaN()
	}
	return mean
}

// Variance is the population variance (divide by N), NaN when empty.
func (o *OnlineStats) Variance() float64 {
	n, _, q := o.moments()
	if n == 0 {
		return math.NaN()
	}
	return q / float64(n)
}

// Stddev is the square root of Variance.
func (o *OnlineStats) Stddev() float64 {
	return math.Sqrt(o.Variance())
}

// moments folds the null observations, as a group of zeros, into the
// running moments.
func (o *OnlineStats) moments() (uint64, float64, float64) {
	if o.nulls == 0 {
		return o.size, o.mean, o.q
	}
	return combine(o.size, o.mean, o.q, o.nulls, 0, 0)
}

func combine(na uint64, meanA, qA float64, nb uint64, meanB, qB float64) (uint64, float64, float64) {
	switch {
	case nb == 0:
		return na, meanA, qA
	case na == 0:
		return nb, meanB, qB
	}
	n := na + nb
	fa, fb, fn := float64(na), float64(nb), float64(n)
	delta := meanB - meanA
	mean := meanA + delta*fb/fn
	q := qA + qB + delta*delta*fa*fb/fn
	return n, mean, q
}
