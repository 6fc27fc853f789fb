// Package tile partitions an image into channels and tiles.
//
// Channels are equal-sized rectangular blocks (for example the areas read out
// by different amplifiers) and each channel is covered by tiles of roughly
// the requested size. Tiles never cross a channel boundary and every pixel
// belongs to exactly one tile.
package tile

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrGeometry is returned when a tessellation cannot be built.
	ErrGeometry = errors.New("invalid tessellation geometry")
	// ErrNoSky is returned when no tile has enough undetected pixels.
	ErrNoSky = errors.New("no usable sky tiles")
)

// Tile is one cell of a tessellation.
type Tile struct {
	ID      int
	Channel int
	Box     image.Rectangle
}

// Tessellation is a complete partition of an image into tiles.
type Tessellation struct {
	Width  int
	Height int
	Tiles  []Tile

	tileOf []int32
}

// Build tessellates a width x height image with tiles of about size pixels
// inside channels.X x channels.Y channels. The image dimensions must be
// divisible by the channel counts. Along each axis a channel holds
// length/size tiles; a remainder larger than half a tile gets its own
// tile, a smaller one is spread over the others.
func Build(width, height int, size, channels image.Point) (*Tessellation, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrGeometry, width, height)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d", ErrGeometry, size.X, size.Y)
	}
	if channels.X <= 0 || channels.Y <= 0 {
		return nil, fmt.Errorf("%w: channel count %dx%d", ErrGeometry, channels.X, channels.Y)
	}
	if width%channels.X != 0 || height%channels.Y != 0 {
		return nil, fmt.Errorf("%w: %dx%d image cannot be split into %dx%d equal channels",
			ErrGeometry, width, height, channels.X, channels.Y)
	}

	chW, chH := width/channels.X, height/channels.Y
	xs := split(chW, size.X)
	ys := split(chH, size.Y)

	t := &Tessellation{Width: width, Height: height, tileOf: make([]int32, width*height)}
	for cy := 0; cy < channels.Y; cy++ {
		for cx := 0; cx < channels.X; cx++ {
			ch := cy*channels.X + cx
			y0 := cy * chH
			for _, h := range ys {
				x0 := cx * chW
				for _, w := range xs {
					id := len(t.Tiles)
					box := image.Rect(x0, y0, x0+w, y0+h)
					t.Tiles = append(t.Tiles, Tile{ID: id, Channel: ch, Box: box})
					for y := box.Min.Y; y < box.Max.Y; y++ {
						for x := box.Min.X; x < box.Max.X; x++ {
							t.tileOf[y*width+x] = int32(id)
						}
					}
					x0 += w
				}
				y0 += h
			}
		}
	}
	return t, nil
}

// split divides length into tile lengths that differ by at most one pixel.
func split(length, size int) []int {
	n := length / size
	rem := length % size
	if n == 0 {
		n = 1
	} else if rem > size/2 {
		n++
	}

	out := make([]int, n)
	base, extra := length/n, length%n
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}

// Len returns the number of tiles.
func (t *Tessellation) Len() int { return len(t.Tiles) }

// TileOf returns the id of the tile holding flat pixel index i.
func (t *Tessellation) TileOf(i int) int { return int(t.tileOf[i]) }

// Indices returns the flat indices of tile id in ascending order.
func (t *Tessellation) Indices(id int) []int {
	box := t.Tiles[id].Box
	out := make([]int, 0, box.Dx()*box.Dy())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			out = append(out, y*t.Width+x)
		}
	}
	return out
}

// OnBorder reports whether flat index i lies on the outer ring of its tile.
func (t *Tessellation) OnBorder(i int) bool {
	box := t.Tiles[t.tileOf[i]].Box
	x, y := i%t.Width, i/t.Width
	return x == box.Min.X || x == box.Max.X-1 || y == box.Min.Y || y == box.Max.Y-1
}
