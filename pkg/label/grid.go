// Package label holds the pixel label machinery shared by the segmentation
// stages: the 2D neighbour topology, the tri-state clump label map, and the
// preparation of detection maps into disjoint regions.
package label

import "fmt"

// Connectivity selects which pixels count as neighbours on the 2D grid.
type Connectivity int

const (
	// Four connects pixels sharing an edge.
	Four Connectivity = 1
	// Eight also connects pixels sharing a corner.
	Eight Connectivity = 2
)

// Valid reports whether c is a supported connectivity.
func (c Connectivity) Valid() bool { return c == Four || c == Eight }

func (c Connectivity) String() string {
	switch c {
	case Four:
		return "4-connected"
	case Eight:
		return "8-connected"
	default:
		return fmt.Sprintf("connectivity(%d)", int(c))
	}
}

// Grid is the geometry of a row-major 2D pixel array.
type Grid struct {
	Width  int
	Height int
}

// Len returns the number of pixels on the grid.
func (g Grid) Len() int { return g.Width * g.Height }

var (
	edgeOffsets   = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	cornerOffsets = [][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
)

// Neighbors appends the flat indices of the neighbours of pixel i to dst and
// returns it. Edge neighbours come first, then corners for Eight.
func (g Grid) Neighbors(i int, c Connectivity, dst []int) []int {
	x, y := i%g.Width, i/g.Width
	for _, o := range edgeOffsets {
		if nx, ny := x+o[0], y+o[1]; nx >= 0 && nx < g.Width && ny >= 0 && ny < g.Height {
			dst = append(dst, ny*g.Width+nx)
		}
	}
	if c == Eight {
		for _, o := range cornerOffsets {
			if nx, ny := x+o[0], y+o[1]; nx >= 0 && nx < g.Width && ny >= 0 && ny < g.Height {
				dst = append(dst, ny*g.Width+nx)
			}
		}
	}
	return dst
}
