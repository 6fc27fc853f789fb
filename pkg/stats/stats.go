// Package stats provides the descriptive statistics used by the segmentation
// engine: mean, median, quantile and sigma clipping over any numeric slice.
//
// The functions are generic over the element type so integer label data and
// floating point images share one implementation; the conversion to float64
// happens once at the slice boundary. NaN elements are treated as blank and
// ignored everywhere.
package stats

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

// Number is any built-in integer or floating point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Float64s converts x to float64, dropping blank (NaN) elements.
func Float64s[T Number](x []T) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// sorted returns a sorted float64 copy of x without blank elements.
func sorted[T Number](x []T) []float64 {
	out := Float64s(x)
	sort.Float64s(out)
	return out
}

// Mean returns the arithmetic mean of the non-blank elements of x, or NaN
// when there are none.
func Mean[T Number](x []T) float64 {
	f := Float64s(x)
	if len(f) == 0 {
		return math.NaN()
	}
	return stat.Mean(f, nil)
}

// Median returns the median of the non-blank elements of x. For an even
// number of elements the two central values are averaged.
func Median[T Number](x []T) float64 {
	return medianSorted(sorted(x))
}

func medianSorted(s []float64) float64 {
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	return (s[(n-1)/2] + s[n/2]) / 2
}

// Quantile returns the q-th quantile (0 <= q <= 1) of the non-blank elements
// of x, using the empirical distribution: the lowest sample value for which
// at least the fraction q of the samples are smaller or equal. It returns
// NaN for an empty sample or an out-of-range q.
func Quantile[T Number](x []T, q float64) float64 {
	if !(q >= 0 && q <= 1) {
		return math.NaN()
	}
	s := sorted(x)
	if len(s) == 0 {
		return math.NaN()
	}
	return stat.Quantile(q, stat.Empirical, s, nil)
}

// ClipResult is the outcome of a sigma clipping run.
type ClipResult struct {
	Count      int
	Median     float64
	Mean       float64
	Std        float64
	Iterations int
}

// SigmaClip iteratively rejects elements further than multiple*std from the
// median of the surviving elements.
//
// A tolerance below 1 stops the iteration once the relative change of the
// standard deviation falls below it; a tolerance of 1 or more is taken as
// the fixed number of iterations to run. Samples with a single element
// return that element with zero standard deviation.
func SigmaClip[T Number](x []T, multiple, tolerance float64) ClipResult {
	s := sorted(x)
	if len(s) == 0 {
		return ClipResult{Median: math.NaN(), Mean: math.NaN(), Std: math.NaN()}
	}

	maxIter := 50
	byCount := tolerance >= 1
	if byCount {
		maxIter = int(tolerance)
	}

	res := describe(s)
	for res.Iterations < maxIter {
		lo := sort.SearchFloat64s(s, res.Median-multiple*res.Std)
		hi := sort.Search(len(s), func(i int) bool { return s[i] > res.Median+multiple*res.Std })
		if hi-lo == 0 {
			break
		}
		prev := res.Std
		next := describe(s[lo:hi])
		next.Iterations = res.Iterations + 1
		s = s[lo:hi]
		res = next
		if !byCount && (res.Std == 0 || (prev-res.Std)/res.Std < tolerance) {
			break
		}
	}
	return res
}

func describe(s []float64) ClipResult {
	if len(s) == 1 {
		return ClipResult{Count: 1, Median: s[0], Mean: s[0]}
	}
	mean, std := stat.MeanStdDev(s, nil)
	return ClipResult{
		Count:  len(s),
		Median: medianSorted(s),
		Mean:   mean,
		Std:    std,
	}
}
