package convolve

import (
	"astroseg/internal/models"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Convolve smooths img with k in the frequency domain and returns a new
// image of the same size.
//
// Blank pixels do not contribute: every output pixel is normalised by the
// kernel weight that fell on valid data, which also corrects the image
// edges. Blank pixels stay blank in the output.
func Convolve(img *models.Image, k *Kernel) (*models.Image, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	half := k.Half()
	pw, ph := img.Width+k.Size-1, img.Height+k.Size-1

	// Data goes in the real part and the valid-pixel mask in the imaginary
	// part. The kernel is real, so one complex transform convolves both.
	signal := make([]complex128, pw*ph)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := y*img.Width + x
			if img.IsBlank(i) {
				continue
			}
			signal[y*pw+x] = complex(img.Data[i], 1)
		}
	}
	kern := make([]complex128, pw*ph)
	for y := 0; y < k.Size; y++ {
		for x := 0; x < k.Size; x++ {
			kern[y*pw+x] = complex(k.Data[y*k.Size+x], 0)
		}
	}

	rows, cols := fourier.NewCmplxFFT(pw), fourier.NewCmplxFFT(ph)
	fft2D(signal, pw, ph, rows, cols, false)
	fft2D(kern, pw, ph, rows, cols, false)
	for i := range signal {
		signal[i] *= kern[i]
	}
	fft2D(signal, pw, ph, rows, cols, true)

	norm := float64(pw * ph)
	out := models.NewImage(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := y*img.Width + x
			if img.IsBlank(i) {
				out.Data[i] = img.Data[i]
				continue
			}
			c := signal[(y+half)*pw+x+half]
			out.Data[i] = (real(c) / norm) / (imag(c) / norm)
		}
	}
	return out, nil
}

// fft2D transforms a pw x ph complex grid in place: rows first, then
// columns. The inverse is unnormalised.
func fft2D(data []complex128, pw, ph int, rows, cols *fourier.CmplxFFT, inverse bool) {
	for y := 0; y < ph; y++ {
		row := data[y*pw : (y+1)*pw]
		if inverse {
			rows.Sequence(row, row)
		} else {
			rows.Coefficients(row, row)
		}
	}

	col := make([]complex128, ph)
	for x := 0; x < pw; x++ {
		for y := 0; y < ph; y++ {
			col[y] = data[y*pw+x]
		}
		if inverse {
			cols.Sequence(col, col)
		} else {
			cols.Coefficients(col, col)
		}
		for y := 0; y < ph; y++ {
			data[y*pw+x] = col[y]
		}
	}
}
