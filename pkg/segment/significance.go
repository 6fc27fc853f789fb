package segment

import (
	"math"

	"astroseg/pkg/label"
	"astroseg/pkg/stats"
)

// ClumpStats is one row of the per-region clump table. Rows are indexed by
// clump id; row 0 is unused.
type ClumpStats struct {
	Area       int
	Sum        float64 // background subtracted
	Background float64
	Variance   float64 // summed over the clump
	SN         float64

	// Peak is the flat index of the brightest pixel of the clump in the
	// watershed signal, PeakNearRiver reports whether it touches a river.
	Peak          int
	PeakNearRiver bool
}

// snFormula is the signal to noise ratio of a sum of pixels with the
// given summed variance. A negative sum contributes no Poisson noise.
func snFormula(corr, sum, variance float64) float64 {
	den := math.Max(sum, 0) + variance
	if den <= 0 {
		return math.NaN()
	}
	return corr * sum / math.Sqrt(den)
}

// significance measures every clump of the workspace. Sums and the
// background come from values, the peak from signal, which is the image
// the watershed ran on.
//
// The background of a clump is the sigma-clipped median of the river
// pixels that border it, or zero when it has none. Clumps smaller than
// MinArea keep a NaN S/N.
func (w *workspace) significance(n int, values, signal []float64, noise Noise, p Params, corr float64) []ClumpStats {
	tab := make([]ClumpStats, n+1)
	for k := range tab {
		tab[k].SN = math.NaN()
		tab[k].Peak = -1
	}
	if n == 0 {
		return tab
	}
	sign := p.sign()

	// River values around every clump.
	rivers := make([][]float64, n+1)
	seen := make([]int32, 0, 8)
	for q := range w.pix {
		if w.kind[q] != label.River {
			continue
		}
		seen = seen[:0]
		for _, r := range w.neighbors(q) {
			id := w.clumpID(int(r))
			if id == 0 || containsID(seen, id) {
				continue
			}
			seen = append(seen, id)
			rivers[id] = append(rivers[id], values[w.pix[q]])
		}
	}
	for k := 1; k <= n; k++ {
		if len(rivers[k]) > 0 {
			tab[k].Background = stats.SigmaClip(rivers[k], p.ClipMultiple, p.ClipTolerance).Median
		}
	}

	peakVal := make([]float64, n+1)
	peakPos := make([]int, n+1)
	for k := range peakVal {
		peakVal[k], peakPos[k] = math.Inf(-1), -1
	}
	for q, i := range w.pix {
		id := w.clumpID(q)
		if id == 0 {
			continue
		}
		row := &tab[id]
		row.Area++
		row.Sum += sign * (values[i] - row.Background)
		std := noise.Std(i)
		row.Variance += std * std
		if v := sign * signal[i]; v > peakVal[id] {
			peakVal[id], peakPos[id] = v, q
		}
	}

	for k := 1; k <= n; k++ {
		row := &tab[k]
		if q := peakPos[k]; q >= 0 {
			row.Peak = w.pix[q]
			for _, r := range w.neighbors(q) {
				if w.kind[r] == label.River {
					row.PeakNearRiver = true
					break
				}
			}
		}
		if row.Area >= p.MinArea {
			row.SN = snFormula(corr, row.Sum, row.Variance)
		}
	}
	return tab
}

func containsID(ids []int32, id int32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
