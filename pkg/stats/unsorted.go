package stats

import (
	"cmp"
	"slices"
)

// Unsorted is an append-only multiset. It keeps every sample so exact
// statistics can be extracted once at the end; memory grows with the
// number of samples added.
type Unsorted[T cmp.Ordered] struct {
	data []T
}

// NewUnsorted returns an empty buffer.
func NewUnsorted[T cmp.Ordered]() *Unsorted[T] {
	return &Unsorted[T]{}
}

// Add appends v.
func (u *Unsorted[T]) Add(v T) {
	u.data = append(u.data, v)
}

// Merge appends every sample of other after the samples of u.
func (u *Unsorted[T]) Merge(other *Unsorted[T]) {
	if other == nil {
		return
	}
	u.data = append(u.data, other.data...)
}

// Len is the number of samples held.
func (u *Unsorted[T]) Len() int {
	return len(u.data)
}

// Cardinality is the number of distinct samples.
func (u *Unsorted[T]) Cardinality() int {
	if len(u.data) == 0 {
		return 0
	}
	seen := make(map[T]struct{}, len(u.data)/2+1)
	for _, v := range u.data {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// Mode returns the most frequent sample. Ties go to the value that occurs
// first in the buffer. ok is false when the buffer is empty.
func (u *Unsorted[T]) Mode() (mode T, ok bool) {
	if len(u.data) == 0 {
		return mode, false
	}
	counts := make(map[T]int, len(u.data)/2+1)
	best := 0
	for _, v := range u.data {
		counts[v]++
	}
	for _, v := range u.data {
		if c := counts[v]; c > best {
			mode, best = v, c
		}
	}
	return mode, true
}

// Median returns the middle of the sorted samples of a numeric buffer: the
// central element for odd lengths, the mean of the two central elements
// for even lengths. ok is false when the buffer is empty. The buffer is
// sorted in place.
func Median(u *Unsorted[float64]) (float64, bool) {
	n := len(u.data)
	if n == 0 {
		return 0, false
	}
	slices.Sort(u.data)
	if n%2 == 1 {
		return u.data[n/2], true
	}
	return (u.data[n/2-1] + u.data[n/2]) / 2, true
}
