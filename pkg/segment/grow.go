package segment

import (
	"math"

	"astroseg/pkg/label"
)

// filter keeps the clumps whose S/N is above threshold and renumbers them
// 1..m in increasing order of their old id. A clump with a NaN S/N is
// always dropped, and so is a clump whose peak touches a river unless
// keepNearRiver is set. Every other non-blank position becomes Unset.
//
// It returns the old id of every kept clump: kept[k-1] is the old id of
// new clump k.
func (w *workspace) filter(tab []ClumpStats, threshold float64, keepNearRiver bool) []int {
	remap := make([]int32, len(tab))
	var kept []int
	for k := 1; k < len(tab); k++ {
		row := tab[k]
		if math.IsNaN(row.SN) || row.SN <= threshold {
			continue
		}
		if row.PeakNearRiver && !keepNearRiver {
			continue
		}
		kept = append(kept, k)
		remap[k] = int32(len(kept))
	}

	for p, kd := range w.kind {
		switch kd {
		case label.Clump:
			if id := remap[w.id[p]]; id > 0 {
				w.id[p] = id
			} else {
				w.reset(p)
			}
		case label.River:
			w.reset(p)
		}
	}
	return kept
}

// growBright is the first growth pass: Unset positions brighter than
// GThresh times the local noise are claimed by the clumps in order of
// decreasing value. Positions reached by two clumps become rivers; the
// ones that are not reached stay Unset.
func (w *workspace) growBright(values []float64, noise Noise, p Params) {
	sign := p.sign()
	value := func(q int) float64 { return sign * values[w.pix[q]] }
	order := w.sortedPositions(value, func(q int) bool {
		return w.kind[q] == label.Unset && value(q) > p.GThresh*noise.Std(w.pix[q])
	})
	w.spread(order, value, withRivers)
}

// growAll is the second growth pass: every remaining Unset position is
// claimed with no intensity floor. Positions that still cannot be reached
// are closed off by rivers and become rivers too.
func (w *workspace) growAll(values []float64, sign float64) {
	value := func(q int) float64 { return sign * values[w.pix[q]] }
	order := w.sortedPositions(value, func(q int) bool { return w.kind[q] == label.Unset })
	for _, q := range w.spread(order, value, withRivers) {
		w.setRiver(q)
	}
}

// fillObjects replaces clump ids by object ids and then gives every river
// the object of its brightest labelled neighbour, so the whole region is
// covered. Detections are 8-connected, so positions the workspace
// connectivity cannot reach are filled in a second pass over the
// 8-neighbours. A position still unreached is an invariant violation.
func (w *workspace) fillObjects(values []float64, sign float64, clumpToObject []int32) error {
	for q, kd := range w.kind {
		switch kd {
		case label.Clump:
			w.id[q] = clumpToObject[w.id[q]]
		case label.River:
			w.reset(q)
		}
	}

	value := func(q int) float64 { return sign * values[w.pix[q]] }
	order := w.sortedPositions(value, func(q int) bool { return w.kind[q] == label.Unset })
	left := w.spread(order, value, noRivers)
	if len(left) > 0 {
		left = w.spreadOn(w.neighbors8, left, value, noRivers)
	}
	if len(left) > 0 {
		i := w.pix[left[0]]
		x, y := i%w.grid.Width, i/w.grid.Width
		return invariantf("region %d: %d pixels could not be assigned to an object, first at (%d, %d)",
			w.region.ID, len(left), x, y)
	}
	return nil
}
