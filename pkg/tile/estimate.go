package tile

import (
	"fmt"
	"math"

	"astroseg/internal/models"
	"astroseg/pkg/stats"
)

// Values holds one value per tile of a tessellation.
type Values struct {
	Tess *Tessellation
	Data []float64
}

// At returns the value of the tile holding flat pixel index i.
func (v *Values) At(i int) float64 { return v.Data[v.Tess.TileOf(i)] }

// Undetected returns the flat indices of tile id that are neither detected
// nor blank.
func Undetected(t *Tessellation, id int, img *models.Image, det *models.Labels) []int {
	all := t.Indices(id)
	out := all[:0]
	for _, i := range all {
		if img.IsBlank(i) {
			continue
		}
		if det != nil && det.Data[i] != 0 {
			continue
		}
		out = append(out, i)
	}
	return out
}

// EstimateStd measures the sky standard deviation of every tile from its
// undetected pixels with sigma clipping. Tiles whose undetected fraction is
// below minFrac take the median of the tiles that could be measured.
func EstimateStd(img *models.Image, det *models.Labels, t *Tessellation, minFrac, clipMultiple, clipTolerance float64) (*Values, error) {
	if img.Width != t.Width || img.Height != t.Height {
		return nil, fmt.Errorf("%w: tessellation is %dx%d but the image is %dx%d",
			ErrGeometry, t.Width, t.Height, img.Width, img.Height)
	}

	out := &Values{Tess: t, Data: make([]float64, t.Len())}
	good := make([]float64, 0, t.Len())
	buf := make([]float64, 0, 256)
	for id, tl := range t.Tiles {
		out.Data[id] = math.NaN()
		idx := Undetected(t, id, img, det)
		area := tl.Box.Dx() * tl.Box.Dy()
		if len(idx) < 2 || float64(len(idx)) < minFrac*float64(area) {
			continue
		}
		buf = buf[:0]
		for _, i := range idx {
			buf = append(buf, img.Data[i])
		}
		res := stats.SigmaClip(buf, clipMultiple, clipTolerance)
		if math.IsNaN(res.Std) || res.Std <= 0 {
			continue
		}
		out.Data[id] = res.Std
		good = append(good, res.Std)
	}

	if len(good) == 0 {
		return nil, fmt.Errorf("%w: no tile has an undetected fraction of at least %.2f", ErrNoSky, minFrac)
	}
	fill := stats.Median(good)
	for id, v := range out.Data {
		if math.IsNaN(v) {
			out.Data[id] = fill
		}
	}
	return out, nil
}
