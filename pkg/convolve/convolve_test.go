package convolve

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"astroseg/internal/models"
)

// direct is the brute-force blank-aware convolution used as reference.
func direct(img *models.Image, k *Kernel) *models.Image {
	half := k.Half()
	out := models.NewImage(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := y*img.Width + x
			if img.IsBlank(i) {
				out.Data[i] = math.NaN()
				continue
			}
			sum, weight := 0.0, 0.0
			for ky := -half; ky <= half; ky++ {
				for kx := -half; kx <= half; kx++ {
					sx, sy := x-kx, y-ky
					if sx < 0 || sx >= img.Width || sy < 0 || sy >= img.Height {
						continue
					}
					j := sy*img.Width + sx
					if img.IsBlank(j) {
						continue
					}
					w := k.Data[(ky+half)*k.Size+kx+half]
					sum += w * img.Data[j]
					weight += w
				}
			}
			out.Data[i] = sum / weight
		}
	}
	return out
}

func TestGaussian(t *testing.T) {
	k, err := Gaussian(2, 1.5)
	if err != nil {
		t.Fatalf("Gaussian failed: %v", err)
	}
	if k.Size%2 != 1 {
		t.Errorf("kernel size %d is not odd", k.Size)
	}
	sum := 0.0
	for _, v := range k.Data {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sum = %g, expected 1", sum)
	}
	c := k.Data[k.Half()*k.Size+k.Half()]
	for _, v := range k.Data {
		if v > c {
			t.Fatal("kernel centre should be its maximum")
		}
	}

	if _, err := Gaussian(0, 1); !errors.Is(err, ErrKernel) {
		t.Errorf("expected ErrKernel for zero fwhm, got %v", err)
	}
}

func TestConvolveConstant(t *testing.T) {
	img := models.NewImage(9, 6)
	for i := range img.Data {
		img.Data[i] = 5
	}
	k, _ := Gaussian(2, 1)

	out, err := Convolve(img, k)
	if err != nil {
		t.Fatalf("Convolve failed: %v", err)
	}
	for i, v := range out.Data {
		if math.Abs(v-5) > 1e-9 {
			t.Fatalf("pixel %d: expected 5, got %g", i, v)
		}
	}
}

func TestConvolveMatchesDirect(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	img := models.NewImage(13, 10)
	for i := range img.Data {
		img.Data[i] = rng.NormFloat64()
	}
	img.Data[14] = math.NaN()
	img.Data[77] = math.NaN()
	k, _ := Gaussian(1.5, 1.5)

	got, err := Convolve(img, k)
	if err != nil {
		t.Fatalf("Convolve failed: %v", err)
	}
	want := direct(img, k)
	for i := range want.Data {
		if math.IsNaN(want.Data[i]) {
			if !math.IsNaN(got.Data[i]) {
				t.Errorf("pixel %d should stay blank, got %g", i, got.Data[i])
			}
			continue
		}
		if math.Abs(got.Data[i]-want.Data[i]) > 1e-9 {
			t.Errorf("pixel %d: expected %g, got %g", i, want.Data[i], got.Data[i])
		}
	}
}

func TestKernelValidate(t *testing.T) {
	testCases := []struct {
		name string
		k    Kernel
	}{
		{"even size", Kernel{Size: 2, Data: make([]float64, 4)}},
		{"short data", Kernel{Size: 3, Data: make([]float64, 4)}},
		{"zero sum", Kernel{Size: 1, Data: []float64{0}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.k.Validate(); !errors.Is(err, ErrKernel) {
				t.Errorf("expected ErrKernel, got %v", err)
			}
		})
	}
}
