package segment

import (
	"math"
	"sort"

	"astroseg/internal/models"
	"astroseg/pkg/label"
)

// workspace is the arena of one region. Pixels are addressed by their
// position in the region's index list, and every per-pixel and per-clump
// table lives here for the lifetime of the region only.
type workspace struct {
	region *models.Region
	grid   label.Grid
	pix    []int // flat image index of every position

	// Neighbour positions inside the region, in compressed rows:
	// the neighbours of position p are nbr[off[p]:off[p+1]].
	off []int32
	nbr []int32

	// The same lists under 8-connectivity, built on first use.
	off8 []int32
	nbr8 []int32

	kind []label.Kind
	id   []int32
}

// newWorkspace builds the arena of region r on grid g. A position is
// blank when any of the given images is NaN there.
func newWorkspace(r *models.Region, g label.Grid, c label.Connectivity, images ...*models.Image) *workspace {
	n := r.Len()
	w := &workspace{
		region: r,
		grid:   g,
		pix:    r.Indices,
		off:    make([]int32, n+1),
		nbr:    make([]int32, 0, n*4),
		kind:   make([]label.Kind, n),
		id:     make([]int32, n),
	}

	buf := make([]int, 0, 8)
	for p, i := range w.pix {
		buf = g.Neighbors(i, c, buf[:0])
		for _, j := range buf {
			if q := r.Pos(j); q >= 0 {
				w.nbr = append(w.nbr, int32(q))
			}
		}
		w.off[p+1] = int32(len(w.nbr))

		for _, img := range images {
			if img != nil && math.IsNaN(img.Data[i]) {
				w.kind[p] = label.Blank
			}
		}
	}
	return w
}

func (w *workspace) len() int { return len(w.pix) }

func (w *workspace) neighbors(p int) []int32 { return w.nbr[w.off[p]:w.off[p+1]] }

// neighbors8 returns the neighbours of position p under 8-connectivity,
// whatever connectivity the workspace was built with.
func (w *workspace) neighbors8(p int) []int32 {
	if w.off8 == nil {
		w.off8 = make([]int32, w.len()+1)
		w.nbr8 = make([]int32, 0, w.len()*8)
		buf := make([]int, 0, 8)
		for q, i := range w.pix {
			buf = w.grid.Neighbors(i, label.Eight, buf[:0])
			for _, j := range buf {
				if r := w.region.Pos(j); r >= 0 {
					w.nbr8 = append(w.nbr8, int32(r))
				}
			}
			w.off8[q+1] = int32(len(w.nbr8))
		}
	}
	return w.nbr8[w.off8[p]:w.off8[p+1]]
}

// maxID returns the largest clump id in the workspace.
func (w *workspace) maxID() int32 {
	var m int32
	for p := range w.kind {
		m = max(m, w.clumpID(p))
	}
	return m
}

func (w *workspace) setClump(p int, id int32) { w.kind[p], w.id[p] = label.Clump, id }
func (w *workspace) setRiver(p int)           { w.kind[p], w.id[p] = label.River, 0 }
func (w *workspace) reset(p int)              { w.kind[p], w.id[p] = label.Unset, 0 }

// clumpID returns the clump id at position p, or 0.
func (w *workspace) clumpID(p int) int32 {
	if w.kind[p] != label.Clump {
		return 0
	}
	return w.id[p]
}

// nonBlank counts the positions that hold data.
func (w *workspace) nonBlank() int {
	n := 0
	for _, k := range w.kind {
		if k != label.Blank {
			n++
		}
	}
	return n
}

// load copies the state of the region's pixels from a shared map.
func (w *workspace) load(m *label.Map) {
	for p, i := range w.pix {
		if w.kind[p] == label.Blank {
			continue
		}
		switch m.Kind(i) {
		case label.Clump:
			w.setClump(p, m.ID(i))
		case label.River:
			w.setRiver(p)
		case label.Blank:
			w.kind[p] = label.Blank
		}
	}
}

// store writes the state of the region's pixels into a shared map. Only
// the region's own pixels are touched.
func (w *workspace) store(m *label.Map) {
	for p, i := range w.pix {
		switch w.kind[p] {
		case label.Clump:
			m.SetClump(i, w.id[p])
		case label.River:
			m.SetRiver(i)
		case label.Blank:
			m.SetBlank(i)
		default:
			m.Reset(i)
		}
	}
}

// export flattens the state of the region's pixels into l.
func (w *workspace) export(l *models.Labels) {
	for p, i := range w.pix {
		switch w.kind[p] {
		case label.Clump:
			l.Data[i] = w.id[p]
		case label.River:
			l.Data[i] = label.RiverValue
		case label.Blank:
			l.Data[i] = label.BlankValue
		default:
			l.Data[i] = 0
		}
	}
}

// sortedPositions returns the positions accepted by keep, ordered by
// decreasing key. Equal keys keep their index order.
func (w *workspace) sortedPositions(key func(p int) float64, keep func(p int) bool) []int {
	order := make([]int, 0, w.len())
	for p := range w.pix {
		if keep(p) {
			order = append(order, p)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return key(order[a]) > key(order[b]) })
	return order
}

// spreadMode selects how a pixel touching several labels is resolved.
type spreadMode int

const (
	// withRivers turns pixels touching two or more labels into rivers.
	withRivers spreadMode = iota
	// noRivers gives such pixels the label of their brightest labelled
	// neighbour.
	noRivers
)

// spread grows the existing clump labels over the Unset positions in
// order, sweeping repeatedly until nothing changes. Labels assigned in a
// sweep are visible to the rest of that sweep. It returns the positions
// that could not be reached.
//
// In noRivers mode a tie between equally bright neighbours goes to the
// smaller label.
func (w *workspace) spread(order []int, value func(p int) float64, mode spreadMode) []int {
	return w.spreadOn(w.neighbors, order, value, mode)
}

// spreadOn is spread with the neighbour lists given by nb.
func (w *workspace) spreadOn(nb func(p int) []int32, order []int, value func(p int) float64, mode spreadMode) []int {
	pending := append([]int(nil), order...)
	next := make([]int, 0, len(order))
	for len(pending) > 0 {
		next = next[:0]
		for _, p := range pending {
			if w.kind[p] != label.Unset {
				continue
			}

			var (
				first, best int32
				bestVal     = math.Inf(-1)
				multiple    bool
			)
			for _, q := range nb(p) {
				id := w.clumpID(int(q))
				if id == 0 {
					continue
				}
				if first == 0 {
					first = id
				} else if id != first {
					multiple = true
				}
				if v := value(int(q)); v > bestVal || (v == bestVal && id < best) {
					best, bestVal = id, v
				}
			}

			switch {
			case first == 0:
				next = append(next, p)
			case !multiple:
				w.setClump(p, first)
			case mode == withRivers:
				w.setRiver(p)
			default:
				w.setClump(p, best)
			}
		}
		if len(next) == len(pending) {
			break
		}
		pending, next = next, pending
	}
	return pending
}
