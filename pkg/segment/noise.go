package segment

import (
	"fmt"
	"math"

	"astroseg/pkg/tile"
)

// Noise gives the background standard deviation at every pixel.
type Noise interface {
	// Std returns the standard deviation at flat pixel index i.
	Std(i int) float64
	// Min returns the smallest positive standard deviation of the dataset.
	Min() float64
}

// ConstantNoise is the same standard deviation everywhere.
type ConstantNoise float64

func (c ConstantNoise) Std(int) float64 { return float64(c) }
func (c ConstantNoise) Min() float64    { return float64(c) }

// PixelNoise holds one standard deviation per pixel.
type PixelNoise struct {
	std []float64
	min float64
}

// NewPixelNoise builds a per-pixel noise model. With variance set the
// values are variances and are converted to standard deviations.
func NewPixelNoise(values []float64, variance bool) *PixelNoise {
	n := &PixelNoise{std: make([]float64, len(values))}
	copy(n.std, values)
	if variance {
		sqrtAll(n.std)
	}
	n.min = positiveMin(n.std)
	return n
}

func (n *PixelNoise) Std(i int) float64 { return n.std[i] }
func (n *PixelNoise) Min() float64      { return n.min }

// TileNoise holds one standard deviation per tile.
type TileNoise struct {
	tess *tile.Tessellation
	std  []float64
	min  float64
}

// NewTileNoise builds a per-tile noise model from tile values.
func NewTileNoise(v *tile.Values, variance bool) *TileNoise {
	n := &TileNoise{tess: v.Tess, std: make([]float64, len(v.Data))}
	copy(n.std, v.Data)
	if variance {
		sqrtAll(n.std)
	}
	n.min = positiveMin(n.std)
	return n
}

func (n *TileNoise) Std(i int) float64 { return n.std[n.tess.TileOf(i)] }
func (n *TileNoise) Min() float64      { return n.min }

func sqrtAll(v []float64) {
	for i := range v {
		v[i] = math.Sqrt(v[i])
	}
}

func positiveMin(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		if x > 0 && x < m {
			m = x
		}
	}
	if math.IsInf(m, 1) {
		return math.NaN()
	}
	return m
}

// cpsCorrection returns the factor applied to every S/N. Images in counts
// per second have noise well below one and their Poisson term has to be
// scaled back to counts.
func cpsCorrection(p Params, n Noise) (float64, error) {
	if p.CPSCorrection > 0 {
		return p.CPSCorrection, nil
	}
	m := n.Min()
	if math.IsNaN(m) || m <= 0 {
		return 0, fmt.Errorf("%w: the noise model has no positive standard deviation", ErrInput)
	}
	if m < 1 {
		return m, nil
	}
	return 1, nil
}
