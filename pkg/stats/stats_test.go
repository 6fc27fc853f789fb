package stats

import (
	"math"
	"testing"
)

func TestMeanAndMedian(t *testing.T) {
	testCases := []struct {
		name   string
		data   []float64
		mean   float64
		median float64
	}{
		{"odd", []float64{3, 1, 2}, 2, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5, 2.5},
		{"blanks ignored", []float64{math.NaN(), 5, 1, math.NaN()}, 3, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Mean(tc.data); math.Abs(got-tc.mean) > 1e-12 {
				t.Errorf("Mean: expected %f, got %f", tc.mean, got)
			}
			if got := Median(tc.data); math.Abs(got-tc.median) > 1e-12 {
				t.Errorf("Median: expected %f, got %f", tc.median, got)
			}
		})
	}

	if !math.IsNaN(Mean([]float64{})) {
		t.Error("Mean of an empty sample should be NaN")
	}
	if got := Median([]int32{7, 1, 4}); got != 4 {
		t.Errorf("Median of int32 sample: expected 4, got %f", got)
	}
}

func TestQuantileKnownSample(t *testing.T) {
	sample := make([]float64, 500)
	for i := range sample {
		// Reverse order so Quantile has to sort its own copy.
		sample[i] = float64(500 - i)
	}

	if got := Quantile(sample, 0.99); got != 495 {
		t.Errorf("expected 99th percentile 495, got %f", got)
	}
	if got := Quantile(sample, 0); got != 1 {
		t.Errorf("expected 0th percentile 1, got %f", got)
	}
	if got := Quantile(sample, 1); got != 500 {
		t.Errorf("expected 100th percentile 500, got %f", got)
	}
	if sample[0] != 500 {
		t.Error("Quantile must not reorder its input")
	}
}

func TestQuantileMonotonic(t *testing.T) {
	sample := []float64{0.3, -1.2, 4.5, 2.2, 2.2, 9.1, -0.4, 1.1}
	prev := math.Inf(-1)
	for q := 0.0; q <= 1.0; q += 0.05 {
		got := Quantile(sample, q)
		if got < prev {
			t.Fatalf("quantile decreased from %f to %f at q=%f", prev, got, q)
		}
		prev = got
	}
}

func TestQuantileInvalid(t *testing.T) {
	if !math.IsNaN(Quantile([]float64{1, 2}, 1.5)) {
		t.Error("out-of-range quantile should be NaN")
	}
	if !math.IsNaN(Quantile([]float64{math.NaN()}, 0.5)) {
		t.Error("quantile of an all-blank sample should be NaN")
	}
}

func TestSigmaClipRejectsOutliers(t *testing.T) {
	data := make([]float64, 0, 104)
	for i := 0; i < 100; i++ {
		data = append(data, 10+float64(i%5)-2)
	}
	data = append(data, 1000, 2000, -900, math.NaN())

	res := SigmaClip(data, 3, 0.2)
	if res.Count != 100 {
		t.Errorf("expected 100 surviving elements, got %d", res.Count)
	}
	if math.Abs(res.Median-10) > 1e-12 {
		t.Errorf("expected clipped median 10, got %f", res.Median)
	}
	if math.Abs(res.Mean-10) > 1e-12 {
		t.Errorf("expected clipped mean 10, got %f", res.Mean)
	}
	if res.Std <= 0 || res.Std > 2 {
		t.Errorf("unexpected clipped std %f", res.Std)
	}
}

func TestSigmaClipFixedIterations(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 100}
	res := SigmaClip(data, 1, 2)
	if res.Iterations > 2 {
		t.Errorf("expected at most 2 iterations, got %d", res.Iterations)
	}
}

func TestSigmaClipSmallSamples(t *testing.T) {
	res := SigmaClip([]float64{4.5}, 3, 0.2)
	if res.Count != 1 || res.Median != 4.5 || res.Std != 0 {
		t.Errorf("single element clip: unexpected result %+v", res)
	}

	res = SigmaClip([]float64{}, 3, 0.2)
	if res.Count != 0 || !math.IsNaN(res.Median) {
		t.Errorf("empty clip: unexpected result %+v", res)
	}
}
