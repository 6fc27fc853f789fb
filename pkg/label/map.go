package label

import (
	"math"

	"astroseg/internal/models"
)

// Kind is the state of one pixel in a clump label map.
type Kind uint8

const (
	// Unset pixels have not been processed yet, or are diffuse: inside a
	// detection but not claimed by any clump.
	Unset Kind = iota
	// River pixels separate two or more clumps.
	River
	// Clump pixels carry a positive clump id.
	Clump
	// Blank pixels have no data and are never touched.
	Blank
)

// Values used when a Map is flattened into a plain label array.
const (
	// BlankValue marks blank pixels in exported label arrays.
	BlankValue int32 = math.MinInt32
	// RiverValue marks river pixels in exported snapshots.
	RiverValue int32 = -1
)

// Map is a clump label map: a kind and an id per pixel. The id is only
// meaningful for Clump pixels, so no id value is reserved as a marker.
type Map struct {
	Grid
	kind []Kind
	id   []int32
}

// NewMap allocates a map with every pixel Unset.
func NewMap(width, height int) *Map {
	return &Map{
		Grid: Grid{Width: width, Height: height},
		kind: make([]Kind, width*height),
		id:   make([]int32, width*height),
	}
}

// Kind returns the state of pixel i.
func (m *Map) Kind(i int) Kind { return m.kind[i] }

// ID returns the clump id of pixel i, or 0 when it is not a clump pixel.
func (m *Map) ID(i int) int32 {
	if m.kind[i] != Clump {
		return 0
	}
	return m.id[i]
}

// SetClump assigns clump id to pixel i.
func (m *Map) SetClump(i int, id int32) { m.kind[i], m.id[i] = Clump, id }

// SetRiver marks pixel i as a river.
func (m *Map) SetRiver(i int) { m.kind[i], m.id[i] = River, 0 }

// SetBlank marks pixel i as blank.
func (m *Map) SetBlank(i int) { m.kind[i], m.id[i] = Blank, 0 }

// Reset returns pixel i to the Unset state.
func (m *Map) Reset(i int) { m.kind[i], m.id[i] = Unset, 0 }

// Labels flattens the map into a plain label array: clump ids, RiverValue
// for rivers, BlankValue for blanks and 0 for everything else.
func (m *Map) Labels() *models.Labels {
	out := models.NewLabels(m.Width, m.Height)
	for i, k := range m.kind {
		switch k {
		case Clump:
			out.Data[i] = m.id[i]
		case River:
			out.Data[i] = RiverValue
		case Blank:
			out.Data[i] = BlankValue
		}
	}
	return out
}
