package segment

import (
	"math"
	"testing"

	"astroseg/internal/models"
	"astroseg/pkg/label"
)

// peakImage is a 7x7 image with one peak of height 100 in the centre and a
// flat background of 0.
func peakImage() *models.Image {
	img := models.NewImage(7, 7)
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			r2 := float64((x-3)*(x-3) + (y-3)*(y-3))
			if r2 <= 4 {
				img.Data[y*7+x] = 100 * math.Exp(-r2/2)
			}
		}
	}
	return img
}

// twoPeakImage is a 13x7 image with two equal Gaussian peaks at (3,3) and
// (9,3). Column 6 between them is a valley at half the value of column 5.
func twoPeakImage() *models.Image {
	const w, h = 13, 7
	img := models.NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.0
			for _, cx := range []int{3, 9} {
				r2 := float64((x-cx)*(x-cx) + (y-3)*(y-3))
				v += 100 * math.Exp(-r2/8)
			}
			img.Data[y*w+x] = v
		}
	}
	for y := 0; y < h; y++ {
		img.Data[y*w+6] = 0.5 * img.Data[y*w+5]
	}
	return img
}

// tiled repeats img nx by ny times and labels every copy as its own
// detection.
func tiled(img *models.Image, nx, ny int) (*models.Image, *models.Labels) {
	w, h := img.Width*nx, img.Height*ny
	out := models.NewImage(w, h)
	det := models.NewLabels(w, h)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			for y := 0; y < img.Height; y++ {
				for x := 0; x < img.Width; x++ {
					i := (ty*img.Height+y)*w + tx*img.Width + x
					out.Data[i] = img.Data[y*img.Width+x]
					det.Data[i] = int32(ty*nx + tx + 1)
				}
			}
		}
	}
	return out, det
}

// wholeRegion is a region covering every pixel of img.
func wholeRegion(img *models.Image) *models.Region {
	idx := make([]int, img.Len())
	for i := range idx {
		idx[i] = i
	}
	return models.NewRegion(1, idx, img.Width)
}

func testParams() Params {
	p := DefaultParams()
	p.SNThreshold = 5
	p.NumThreads = 2
	return p
}

func newTestSegmenter(t *testing.T, p Params) *Segmenter {
	t.Helper()
	s, err := New(p, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

// samePartition reports whether two label arrays split the pixels in the
// same way, whatever the label values.
func samePartition(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	ab := make(map[int32]int32)
	ba := make(map[int32]int32)
	for i := range a {
		if x, ok := ab[a[i]]; ok && x != b[i] {
			return false
		}
		if y, ok := ba[b[i]]; ok && y != a[i] {
			return false
		}
		ab[a[i]], ba[b[i]] = b[i], a[i]
	}
	return true
}

// distinct returns the set of values in l restricted to positive ones.
func distinct(l []int32) map[int32]int {
	out := make(map[int32]int)
	for _, v := range l {
		if v > 0 {
			out[v]++
		}
	}
	return out
}

func kindAt(m *label.Map, img *models.Image, x, y int) label.Kind {
	return m.Kind(img.Index(x, y))
}
