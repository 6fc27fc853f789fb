package segment

import (
	"math"
	"testing"

	"astroseg/internal/models"
	"astroseg/pkg/label"
)

func TestWatershedSinglePeak(t *testing.T) {
	img := peakImage()
	m := label.NewMap(7, 7)

	n := Watershed(img, wholeRegion(img), m, label.Eight, false)
	if n != 1 {
		t.Fatalf("expected 1 clump, got %d", n)
	}
	for i := 0; i < img.Len(); i++ {
		if m.ID(i) != 1 {
			t.Fatalf("pixel %d: expected clump 1, got kind %d id %d", i, m.Kind(i), m.ID(i))
		}
	}
}

func TestWatershedTwoPeaks(t *testing.T) {
	img := twoPeakImage()
	m := label.NewMap(img.Width, img.Height)

	n := Watershed(img, wholeRegion(img), m, label.Eight, false)
	if n != 2 {
		t.Fatalf("expected 2 clumps, got %d", n)
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			i := img.Index(x, y)
			switch {
			case x < 6 && m.ID(i) != 1:
				t.Errorf("(%d,%d): expected clump 1, got %d", x, y, m.ID(i))
			case x == 6 && m.Kind(i) != label.River:
				t.Errorf("(%d,%d): expected a river, got kind %d", x, y, m.Kind(i))
			case x > 6 && m.ID(i) != 2:
				t.Errorf("(%d,%d): expected clump 2, got %d", x, y, m.ID(i))
			}
		}
	}
}

func TestWatershedMinima(t *testing.T) {
	img := twoPeakImage()
	for i := range img.Data {
		img.Data[i] = -img.Data[i]
	}
	m := label.NewMap(img.Width, img.Height)

	if n := Watershed(img, wholeRegion(img), m, label.Eight, true); n != 2 {
		t.Fatalf("expected 2 clumps around the minima, got %d", n)
	}
	if kindAt(m, img, 6, 3) != label.River {
		t.Error("the ridge between the minima should be a river")
	}
}

func TestWatershedEdgeCases(t *testing.T) {
	t.Run("single pixel", func(t *testing.T) {
		img := peakImage()
		m := label.NewMap(7, 7)
		r := models.NewRegion(1, []int{24}, 7)
		if n := Watershed(img, r, m, label.Eight, false); n != 0 {
			t.Errorf("expected no clump in a one pixel region, got %d", n)
		}
	})

	t.Run("blank region", func(t *testing.T) {
		img := models.NewImage(4, 4)
		for i := range img.Data {
			img.Data[i] = math.NaN()
		}
		m := label.NewMap(4, 4)
		if n := Watershed(img, wholeRegion(img), m, label.Four, false); n != 0 {
			t.Errorf("expected no clump in a blank region, got %d", n)
		}
		for i := 0; i < img.Len(); i++ {
			if m.Kind(i) != label.Blank {
				t.Fatalf("pixel %d should stay blank", i)
			}
		}
	})

	t.Run("flat region", func(t *testing.T) {
		img := models.NewImage(5, 5)
		m := label.NewMap(5, 5)
		if n := Watershed(img, wholeRegion(img), m, label.Eight, false); n != 1 {
			t.Errorf("a flat region is one plateau and one clump, got %d", n)
		}
	})
}

func TestWatershedKeepsPresetRivers(t *testing.T) {
	img := peakImage()
	m := label.NewMap(7, 7)
	for x := 0; x < 7; x++ {
		m.SetRiver(img.Index(x, 0))
	}

	Watershed(img, wholeRegion(img), m, label.Eight, false)
	for x := 0; x < 7; x++ {
		if kindAt(m, img, x, 0) != label.River {
			t.Errorf("preset river at (%d,0) was overwritten", x)
		}
	}
	if m.ID(img.Index(3, 3)) != 1 {
		t.Error("the peak should still start clump 1")
	}
}

func TestWatershedDeterministic(t *testing.T) {
	// Many ties: a checkerboard of two values.
	img := models.NewImage(9, 9)
	for i := range img.Data {
		x, y := img.Coords(i)
		img.Data[i] = float64((x + y) % 2)
	}

	first := label.NewMap(9, 9)
	n1 := Watershed(img, wholeRegion(img), first, label.Four, false)
	for run := 0; run < 3; run++ {
		m := label.NewMap(9, 9)
		if n := Watershed(img, wholeRegion(img), m, label.Four, false); n != n1 {
			t.Fatalf("run %d: expected %d clumps, got %d", run, n1, n)
		}
		a, b := first.Labels(), m.Labels()
		for i := range a.Data {
			if a.Data[i] != b.Data[i] {
				t.Fatalf("run %d: pixel %d differs (%d vs %d)", run, i, a.Data[i], b.Data[i])
			}
		}
	}
}
