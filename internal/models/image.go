package models

import (
	"image"
	"math"
)

// Image is a 2D floating point pixel array stored in row-major order.
// Blank pixels are NaN and never count as data.
type Image struct {
	// Width and Height are the dimensions of the image in pixels
	Width  int
	Height int

	// Data holds Width*Height pixel values
	Data []float64
}

// NewImage allocates a zero-filled image.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
	}
}

// Len returns the number of pixels.
func (im *Image) Len() int { return len(im.Data) }

// Index converts pixel coordinates to a flat index.
func (im *Image) Index(x, y int) int { return y*im.Width + x }

// Coords converts a flat index back to pixel coordinates.
func (im *Image) Coords(i int) (x, y int) { return i % im.Width, i / im.Width }

// IsBlank reports whether pixel i is blank.
func (im *Image) IsBlank(i int) bool { return math.IsNaN(im.Data[i]) }

// HasBlank reports whether any pixel of the image is blank.
func (im *Image) HasBlank() bool {
	for _, v := range im.Data {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	out := NewImage(im.Width, im.Height)
	copy(out.Data, im.Data)
	return out
}

// SameShape reports whether two arrays cover the same pixel grid.
func SameShape(aw, ah, bw, bh int) bool { return aw == bw && ah == bh }

// Labels is an integer label per pixel with the geometry of an Image.
type Labels struct {
	Width  int
	Height int
	Data   []int32
}

// NewLabels allocates a zero-filled label array.
func NewLabels(width, height int) *Labels {
	return &Labels{
		Width:  width,
		Height: height,
		Data:   make([]int32, width*height),
	}
}

// Max returns the largest label value, or 0 for an empty array.
func (l *Labels) Max() int32 {
	var m int32
	for _, v := range l.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// Clone returns a deep copy of the labels.
func (l *Labels) Clone() *Labels {
	out := NewLabels(l.Width, l.Height)
	copy(out.Data, l.Data)
	return out
}

// Region is the unit of work of the segmentation engine: the flat pixel
// indices of exactly one detection or one background tile. Regions never
// share pixels, so a worker owning a region may write its pixels of any
// shared label array without locking.
type Region struct {
	// ID is the detection label or tile number the region was built from
	ID int

	// Indices are the flat pixel indices in ascending order
	Indices []int

	// Box is the bounding box of the region in pixel coordinates
	Box image.Rectangle

	width  int
	member []int32 // position in Indices for every pixel of Box, -1 outside
}

// NewRegion builds a region from ascending flat indices of an image with
// the given width.
func NewRegion(id int, indices []int, width int) *Region {
	r := &Region{ID: id, Indices: indices, width: width}
	if len(indices) == 0 {
		return r
	}

	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := -1, -1
	for _, i := range indices {
		x, y := i%width, i/width
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	r.Box = image.Rect(minX, minY, maxX+1, maxY+1)

	r.member = make([]int32, r.Box.Dx()*r.Box.Dy())
	for k := range r.member {
		r.member[k] = -1
	}
	for p, i := range indices {
		r.member[r.local(i)] = int32(p)
	}
	return r
}

// Len returns the number of pixels in the region.
func (r *Region) Len() int { return len(r.Indices) }

// Pos returns the position of flat index i within Indices, or -1 when the
// pixel does not belong to the region.
func (r *Region) Pos(i int) int {
	if r.member == nil {
		return -1
	}
	x, y := i%r.width, i/r.width
	if x < r.Box.Min.X || x >= r.Box.Max.X || y < r.Box.Min.Y || y >= r.Box.Max.Y {
		return -1
	}
	return int(r.member[r.local(i)])
}

// Contains reports whether flat index i belongs to the region.
func (r *Region) Contains(i int) bool { return r.Pos(i) >= 0 }

func (r *Region) local(i int) int {
	x, y := i%r.width, i/r.width
	return (y-r.Box.Min.Y)*r.Box.Dx() + (x - r.Box.Min.X)
}
