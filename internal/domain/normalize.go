package domain

import (
	"cmp"
	"math"
	"slices"
)

// NormalizeLongitude maps x onto the half-open interval [-180, 180) using
// ((x + 180) mod 360) - 180. A longitude of exactly 180 becomes -180.
// Values already inside the interval are returned untouched, so normalizing
// twice never drifts by a rounding error.
func NormalizeLongitude(x float64) float64 {
	if x >= -180 && x < 180 {
		return x
	}
	m := math.Mod(x+180, 360)
	if m < 0 {
		m += 360
	}
	return m - 180
}

// NormalizeLongitudes wraps every value of a longitude axis onto [-180, 180)
// and restores ascending order with a stable sort. perm[i] is the index in
// lon of the value now stored at position i; apply the same permutation to
// every array sharing the longitude dimension.
func NormalizeLongitudes(lon []float64) (axis []float64, perm []int) {
	wrapped := make([]float64, len(lon))
	for i, x := range lon {
		wrapped[i] = NormalizeLongitude(x)
	}
	perm = SortAxis(wrapped)
	return ApplyPermutation(wrapped, perm), perm
}

// SortAxis returns the stable permutation that orders axis ascending.
func SortAxis(axis []float64) []int {
	perm := make([]int, len(axis))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		return cmp.Compare(axis[a], axis[b])
	})
	return perm
}

// ApplyPermutation returns axis reordered so that out[i] = axis[perm[i]].
func ApplyPermutation(axis []float64, perm []int) []float64 {
	out := make([]float64, len(perm))
	for i, src := range perm {
		out[i] = axis[src]
	}
	return out
}

// PermuteAxis reorders a row-major array along one dimension. shape holds the
// length of every dimension and perm[i] names the source index that lands at
// position i of dimension axis. The input is not modified.
func PermuteAxis(values []float64, shape []int, axis int, perm []int) []float64 {
	outer, inner := 1, 1
	for _, n := range shape[:axis] {
		outer *= n
	}
	for _, n := range shape[axis+1:] {
		inner *= n
	}
	n := shape[axis]

	out := make([]float64, len(values))
	for o := range outer {
		base := o * n * inner
		for i, src := range perm {
			copy(out[base+i*inner:base+(i+1)*inner], values[base+src*inner:base+(src+1)*inner])
		}
	}
	return out
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}
