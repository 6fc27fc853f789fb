package segment

import (
	"astroseg/internal/models"
	"astroseg/pkg/label"
)

// watershed labels the Unset positions of the workspace into clumps
// separated by rivers, flooding from the brightest pixel down. sign is -1
// to flood from the faintest pixel up instead. Positions that are already
// rivers (for example a tile border) are kept and never flooded.
//
// Pixels are visited in order of value; equal values keep their index
// order. A connected plateau of equal values is handled at once:
//   - touching no clump, it starts a new one;
//   - touching exactly one clump, it is annexed to it;
//   - touching several, it is shared by growing each clump over it, and
//     pixels reached by two clumps become rivers.
//
// The clumps are numbered 1..n in order of creation and n is returned.
func (w *workspace) watershed(signal []float64, sign float64) int {
	value := func(p int) float64 { return sign * signal[w.pix[p]] }
	order := w.sortedPositions(value, func(p int) bool { return w.kind[p] == label.Unset })

	// A lone pixel cannot be told apart from its surroundings.
	if len(order) < 2 {
		return 0
	}

	var (
		n       int32
		plateau = make([]int, 0, 16)
		mark    = make([]int32, w.len())
	)
	for step, p := range order {
		if w.kind[p] != label.Unset {
			continue
		}

		stamp := int32(step + 1)
		plateau = w.plateau(p, value, mark, stamp, plateau[:0])

		var first int32
		multiple := false
		for _, q := range plateau {
			for _, r := range w.neighbors(q) {
				if mark[r] == stamp {
					continue
				}
				id := w.clumpID(int(r))
				if id == 0 {
					continue
				}
				if first == 0 {
					first = id
				} else if id != first {
					multiple = true
				}
			}
		}

		switch {
		case first == 0:
			n++
			for _, q := range plateau {
				w.setClump(q, n)
			}
		case !multiple:
			for _, q := range plateau {
				w.setClump(q, first)
			}
		case len(plateau) == 1:
			w.setRiver(p)
		default:
			for _, q := range w.spread(plateau, value, withRivers) {
				w.setRiver(q)
			}
		}
	}
	return int(n)
}

// plateau appends to dst the Unset positions connected to p with exactly
// the same value, p first, and sets their mark to stamp.
func (w *workspace) plateau(p int, value func(int) float64, mark []int32, stamp int32, dst []int) []int {
	v := value(p)
	dst = append(dst, p)
	mark[p] = stamp
	for k := 0; k < len(dst); k++ {
		for _, r := range w.neighbors(dst[k]) {
			q := int(r)
			if mark[q] == stamp || w.kind[q] != label.Unset || value(q) != v {
				continue
			}
			mark[q] = stamp
			dst = append(dst, q)
		}
	}
	return dst
}

// Watershed runs the watershed on the pixels of region r using the values
// of signal, and stores the result in m. Pixels of r that m already marks
// as rivers or blanks are kept. It returns the number of clumps.
func Watershed(signal *models.Image, r *models.Region, m *label.Map, c label.Connectivity, findMinima bool) int {
	w := newWorkspace(r, m.Grid, c, signal)
	w.load(m)
	sign := 1.0
	if findMinima {
		sign = -1
	}
	n := w.watershed(signal.Data, sign)
	w.store(m)
	return n
}
