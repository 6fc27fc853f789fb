package segment

import (
	"sort"

	"astroseg/pkg/label"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
)

// Adjacency records, for every pair of grown clumps, the border pixels
// they share: how many, their summed value and their summed variance.
// A border pixel adds only its own value and variance to a pair, never
// those of the clump pixels around it.
// Clump ids index the matrices directly, so row and column 0 are unused.
type Adjacency struct {
	n        int
	count    *mat.SymDense
	sum      *mat.SymDense
	variance *mat.SymDense

	corr      float64
	minLength int
	limit     float64

	// Diffuse is the number of non-clump pixels that were inspected.
	Diffuse int
}

// adjacency scans every non-clump pixel of the workspace. A pixel touching
// two or more clumps adds its own value and variance to every pair of
// those clumps.
func (w *workspace) adjacency(n int, values []float64, noise Noise, p Params, corr float64) *Adjacency {
	a := &Adjacency{
		n:         n,
		count:     mat.NewSymDense(n+1, nil),
		sum:       mat.NewSymDense(n+1, nil),
		variance:  mat.NewSymDense(n+1, nil),
		corr:      corr,
		minLength: p.MinRiverLength,
		limit:     p.ObjBorderSN,
	}
	sign := p.sign()

	ids := make([]int32, 0, 8)
	for q, kd := range w.kind {
		if kd == label.Clump || kd == label.Blank {
			continue
		}
		a.Diffuse++

		ids = ids[:0]
		for _, r := range w.neighbors(q) {
			if id := w.clumpID(int(r)); id != 0 && !containsID(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 {
			continue
		}

		i := w.pix[q]
		v := sign * values[i]
		std := noise.Std(i)
		for x := 0; x < len(ids); x++ {
			for y := x + 1; y < len(ids); y++ {
				c, d := int(ids[x]), int(ids[y])
				a.count.SetSym(c, d, a.count.At(c, d)+1)
				a.sum.SetSym(c, d, a.sum.At(c, d)+v)
				a.variance.SetSym(c, d, a.variance.At(c, d)+std*std)
			}
		}
	}
	return a
}

// Len returns the number of clumps.
func (a *Adjacency) Len() int { return a.n }

// Count returns the number of border pixels shared by clumps i and j.
func (a *Adjacency) Count(i, j int) int { return int(a.count.At(i, j)) }

// BorderSN returns the S/N of the border between clumps i and j, using
// the same noise model as the clump S/N.
func (a *Adjacency) BorderSN(i, j int) float64 {
	return snFormula(a.corr, a.sum.At(i, j), a.variance.At(i, j))
}

// Connected reports whether clumps i and j belong to the same object
// through their shared border: it must be longer than the minimum river
// length and its S/N must exceed the limit.
func (a *Adjacency) Connected(i, j int) bool {
	if i == j || a.Count(i, j) <= a.minLength {
		return false
	}
	return a.BorderSN(i, j) > a.limit
}

// Objects groups connected clumps into objects. It returns the object of
// every clump (index 0 unused) and the number of objects. Objects are
// numbered in increasing order of their smallest clump id.
func (a *Adjacency) Objects() ([]int32, int) {
	g := simple.NewUndirectedGraph()
	for k := 1; k <= a.n; k++ {
		g.AddNode(simple.Node(k))
	}
	for i := 1; i <= a.n; i++ {
		for j := i + 1; j <= a.n; j++ {
			if a.Connected(i, j) {
				g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}

	comps := topo.ConnectedComponents(g)
	minID := func(c []graph.Node) int64 {
		m := c[0].ID()
		for _, nd := range c[1:] {
			m = min(m, nd.ID())
		}
		return m
	}
	sort.Slice(comps, func(x, y int) bool { return minID(comps[x]) < minID(comps[y]) })

	clumpToObject := make([]int32, a.n+1)
	for o, c := range comps {
		for _, nd := range c {
			clumpToObject[nd.ID()] = int32(o + 1)
		}
	}
	return clumpToObject, len(comps)
}
