// Package convolve smooths images with a small kernel before the watershed
// so that clumps follow the underlying signal rather than pixel noise.
package convolve

import (
	"errors"
	"fmt"
	"math"
)

// ErrKernel is returned for kernels that cannot be used.
var ErrKernel = errors.New("invalid kernel")

// fwhmToSigma converts a full width at half maximum to a Gaussian sigma.
const fwhmToSigma = 1 / 2.3548200450309493

// Kernel is a square, odd-sized convolution kernel in row-major order.
type Kernel struct {
	Size int
	Data []float64
}

// Half returns the distance from the kernel centre to its edge.
func (k *Kernel) Half() int { return k.Size / 2 }

// Gaussian builds a circular Gaussian kernel with the given FWHM in pixels,
// truncated at truncation times the FWHM from the centre and normalised to
// a sum of one.
func Gaussian(fwhm, truncation float64) (*Kernel, error) {
	if fwhm <= 0 || math.IsNaN(fwhm) {
		return nil, fmt.Errorf("%w: fwhm must be positive, got %g", ErrKernel, fwhm)
	}
	if truncation <= 0 || math.IsNaN(truncation) {
		return nil, fmt.Errorf("%w: truncation must be positive, got %g", ErrKernel, truncation)
	}

	sigma := fwhm * fwhmToSigma
	radius := truncation * fwhm
	half := int(math.Ceil(radius))
	size := 2*half + 1

	k := &Kernel{Size: size, Data: make([]float64, size*size)}
	sum := 0.0
	for y := -half; y <= half; y++ {
		for x := -half; x <= half; x++ {
			r2 := float64(x*x + y*y)
			if r2 > radius*radius {
				continue
			}
			v := math.Exp(-r2 / (2 * sigma * sigma))
			k.Data[(y+half)*size+x+half] = v
			sum += v
		}
	}
	for i := range k.Data {
		k.Data[i] /= sum
	}
	return k, nil
}

// Validate checks that the kernel is square, odd and has a positive sum.
func (k *Kernel) Validate() error {
	if k.Size <= 0 || k.Size%2 == 0 {
		return fmt.Errorf("%w: size %d is not a positive odd number", ErrKernel, k.Size)
	}
	if len(k.Data) != k.Size*k.Size {
		return fmt.Errorf("%w: %d values for a %dx%d kernel", ErrKernel, len(k.Data), k.Size, k.Size)
	}
	sum := 0.0
	for _, v := range k.Data {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: kernel contains NaN", ErrKernel)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("%w: kernel sum %g is not positive", ErrKernel, sum)
	}
	return nil
}
