package segment

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRunRegionsVisitsEveryRegion(t *testing.T) {
	const n = 100
	var hits [n]atomic.Int32

	err := runRegions(context.Background(), n, 7, func(_ context.Context, k int) error {
		hits[k].Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for k := range hits {
		if hits[k].Load() != 1 {
			t.Errorf("region %d processed %d times", k, hits[k].Load())
		}
	}
}

func TestRunRegionsStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var done atomic.Int32

	err := runRegions(context.Background(), 1000, 1, func(_ context.Context, k int) error {
		done.Add(1)
		if k == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the worker error, got %v", err)
	}
	if done.Load() == 1000 {
		t.Error("remaining regions should have been skipped")
	}
}

func TestRunRegionsEmpty(t *testing.T) {
	called := false
	if err := runRegions(context.Background(), 0, 4, func(context.Context, int) error {
		called = true
		return nil
	}); err != nil || called {
		t.Errorf("no work expected, got err=%v called=%v", err, called)
	}
}

func TestRelabelerOffsets(t *testing.T) {
	type reservation struct{ clumps, objects, clumpOff, objOff int }

	var (
		rel Relabeler
		mu  sync.Mutex
		got []reservation
		wg  sync.WaitGroup
	)
	for k := 0; k < 50; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			nc, no := k%4, 1+k%3
			c, o := rel.Reserve(nc, no)
			mu.Lock()
			got = append(got, reservation{nc, no, int(c), int(o)})
			mu.Unlock()
		}(k)
	}
	wg.Wait()

	// The reserved ranges tile 1..total without gaps or overlaps.
	check := func(name string, size, off func(r reservation) int, total int) {
		sort.Slice(got, func(a, b int) bool {
			if off(got[a]) != off(got[b]) {
				return off(got[a]) < off(got[b])
			}
			return size(got[a]) < size(got[b])
		})
		next := 0
		for _, r := range got {
			if size(r) == 0 {
				continue
			}
			if off(r) != next {
				t.Fatalf("%s: range starts at %d, expected %d", name, off(r), next)
			}
			next += size(r)
		}
		if next != total {
			t.Errorf("%s: ranges cover %d labels, totals say %d", name, next, total)
		}
	}
	clumps, objects := rel.Totals()
	check("clumps", func(r reservation) int { return r.clumps }, func(r reservation) int { return r.clumpOff }, clumps)
	check("objects", func(r reservation) int { return r.objects }, func(r reservation) int { return r.objOff }, objects)
}

func TestThresholdFromSample(t *testing.T) {
	sample := make([]float64, 500)
	for i := range sample {
		sample[i] = float64(500 - i)
	}
	sample = append(sample, math.NaN())

	th, err := ThresholdFromSample(sample, 0.99, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(th-495) > 1e-9 {
		t.Errorf("expected the 99th percentile 495, got %g", th)
	}

	if _, err := ThresholdFromSample(sample, 0.99, 501); !errors.Is(err, ErrInsufficientSky) {
		t.Errorf("expected ErrInsufficientSky, got %v", err)
	}
	if _, err := ThresholdFromSample(nil, 0.5, 0); !errors.Is(err, ErrInsufficientSky) {
		t.Errorf("an empty sample is never enough, got %v", err)
	}
}
