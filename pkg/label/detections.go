package label

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"astroseg/internal/models"
)

// ErrInvalidDetections is returned for detection maps the engine cannot use.
var ErrInvalidDetections = errors.New("invalid detection map")

// Components labels the connected groups of pixels sharing the same
// non-zero key. Components are numbered from 1 in raster order of their
// first pixel; pixels with key 0 get label 0.
func Components(g Grid, c Connectivity, key func(i int) int32) (labels []int32, n int) {
	labels = make([]int32, g.Len())
	graph := simple.NewUndirectedGraph()
	nbrs := make([]int, 0, 8)

	for i := 0; i < g.Len(); i++ {
		k := key(i)
		if k == 0 {
			continue
		}
		if graph.Node(int64(i)) == nil {
			graph.AddNode(simple.Node(i))
		}
		nbrs = g.Neighbors(i, c, nbrs[:0])
		for _, j := range nbrs {
			if j > i && key(j) == k {
				graph.SetEdge(graph.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}

	comps := topo.ConnectedComponents(graph)
	first := make([]int64, len(comps))
	for k, comp := range comps {
		first[k] = comp[0].ID()
		for _, node := range comp[1:] {
			first[k] = min(first[k], node.ID())
		}
	}
	order := make([]int, len(comps))
	for k := range order {
		order[k] = k
	}
	sort.Slice(order, func(a, b int) bool { return first[order[a]] < first[order[b]] })

	for rank, k := range order {
		for _, node := range comps[k] {
			labels[node.ID()] = int32(rank + 1)
		}
	}
	return labels, len(comps)
}

// PrepareDetections validates a detection map against its image and returns
// a copy whose labels are consecutive from 1, together with the number of
// detections.
//
// Detections are 8-connected whatever connectivity the segmentation uses.
// A nil map treats every non-blank pixel of the image as one detection. A
// map whose largest label is 1 is a binary mask and is split into its
// connected components. Blank image pixels always end up with label 0; a
// detection that blank pixels cut into pieces becomes one detection per
// piece.
func PrepareDetections(img *models.Image, det *models.Labels) (*models.Labels, int, error) {
	g := Grid{Width: img.Width, Height: img.Height}

	if det == nil {
		out := models.NewLabels(img.Width, img.Height)
		n := 0
		for i := range out.Data {
			if !img.IsBlank(i) {
				out.Data[i], n = 1, 1
			}
		}
		return out, n, nil
	}

	if !models.SameShape(img.Width, img.Height, det.Width, det.Height) {
		return nil, 0, fmt.Errorf("%w: detection map is %dx%d but the image is %dx%d",
			ErrInvalidDetections, det.Width, det.Height, img.Width, img.Height)
	}

	out := det.Clone()
	for i, v := range out.Data {
		switch {
		case v == BlankValue:
			out.Data[i] = 0
		case v < 0:
			x, y := img.Coords(i)
			return nil, 0, fmt.Errorf("%w: negative label %d at pixel (%d, %d)", ErrInvalidDetections, v, x, y)
		}
	}

	if out.Max() > 1 {
		if err := checkConnected(g, out); err != nil {
			return nil, 0, err
		}
	}

	for i := range out.Data {
		if img.IsBlank(i) {
			out.Data[i] = 0
		}
	}
	n := splitPieces(g, out)
	return out, n, nil
}

// splitPieces renumbers l so that every 8-connected piece of every label
// gets its own label. Pieces are ordered by their old label, then by their
// first pixel.
func splitPieces(g Grid, l *models.Labels) int {
	comps, n := Components(g, Eight, func(i int) int32 { return l.Data[i] })
	old := make([]int32, n+1)
	for i, c := range comps {
		if c > 0 && old[c] == 0 {
			old[c] = l.Data[i]
		}
	}
	order := make([]int32, n)
	for k := range order {
		order[k] = int32(k + 1)
	}
	sort.SliceStable(order, func(a, b int) bool { return old[order[a]] < old[order[b]] })

	remap := make([]int32, n+1)
	for rank, c := range order {
		remap[c] = int32(rank + 1)
	}
	for i, c := range comps {
		l.Data[i] = remap[c]
	}
	return n
}

// checkConnected reports the first label of l that is not 8-connected.
func checkConnected(g Grid, l *models.Labels) error {
	comps, _ := Components(g, Eight, func(i int) int32 { return l.Data[i] })
	first := make(map[int32]int32)
	for i, v := range l.Data {
		if v == 0 {
			continue
		}
		if cc, ok := first[v]; !ok {
			first[v] = comps[i]
		} else if cc != comps[i] {
			x, y := i%g.Width, i/g.Width
			return fmt.Errorf("%w: detection %d is not %s, a separate piece starts at (%d, %d)",
				ErrInvalidDetections, v, Eight, x, y)
		}
	}
	return nil
}

// Regions groups the pixels of a prepared detection map into n regions;
// region k-1 holds the pixels of detection k.
func Regions(det *models.Labels, n int) []*models.Region {
	buckets := make([][]int, n)
	for i, v := range det.Data {
		if v > 0 {
			buckets[v-1] = append(buckets[v-1], i)
		}
	}
	regions := make([]*models.Region, n)
	for k, idx := range buckets {
		regions[k] = models.NewRegion(k+1, idx, det.Width)
	}
	return regions
}
