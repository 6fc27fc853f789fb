package segment

import (
	"fmt"
	"math"
	"runtime"

	"astroseg/pkg/label"
)

// Params holds the tunables of the segmentation engine.
type Params struct {
	// Connectivity is the neighbour topology used by every stage.
	Connectivity label.Connectivity

	// FindMinima makes clumps grow from local minima instead of maxima,
	// for images where the signal is negative.
	FindMinima bool

	// MinArea is the smallest clump, in pixels, that gets an S/N. Smaller
	// clumps get NaN and are always rejected.
	MinArea int

	// SNQuantile is the quantile of the sky clump S/N distribution used as
	// the acceptance threshold for clumps in detections.
	SNQuantile float64

	// SNThreshold, when positive, is used directly and the sky is not
	// measured at all.
	SNThreshold float64

	// MinSkyFrac is the minimum fraction of undetected pixels a tile needs
	// to take part in the sky measurement.
	MinSkyFrac float64

	// MinNumSky is the minimum number of sky clumps needed to trust the
	// learned threshold.
	MinNumSky int

	// GThresh limits the first growth pass to pixels brighter than
	// GThresh times the local noise.
	GThresh float64

	// MinRiverLength is the number of border pixels two clumps must share
	// before their border S/N is considered at all.
	MinRiverLength int

	// ObjBorderSN is the border S/N above which two touching clumps are
	// merged into one object. Lower values give fewer, larger objects.
	ObjBorderSN float64

	// KeepMaxNearRiver keeps clumps whose peak touches a river.
	KeepMaxNearRiver bool

	// ClipMultiple and ClipTolerance configure the sigma clipping of the
	// river pixels around each clump.
	ClipMultiple  float64
	ClipTolerance float64

	// CPSCorrection scales every S/N. Zero selects it automatically from
	// the smallest noise value of the dataset.
	CPSCorrection float64

	// NumThreads is the size of the worker pool. Zero uses all CPUs.
	NumThreads int

	// Snapshots keeps the label maps after every stage in the result.
	Snapshots bool
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Connectivity:   label.Eight,
		MinArea:        3,
		SNQuantile:     0.99,
		MinSkyFrac:     0.7,
		MinNumSky:      100,
		GThresh:        0.5,
		MinRiverLength: 3,
		ObjBorderSN:    1,
		ClipMultiple:   3,
		ClipTolerance:  0.2,
	}
}

// Validate checks the parameters and returns an ErrInput error for the
// first bad value.
func (p Params) Validate() error {
	switch {
	case !p.Connectivity.Valid():
		return fmt.Errorf("%w: unsupported connectivity %v", ErrInput, p.Connectivity)
	case p.MinArea < 1:
		return fmt.Errorf("%w: minArea must be at least 1, got %d", ErrInput, p.MinArea)
	case p.SNThreshold <= 0 && (p.SNQuantile <= 0 || p.SNQuantile >= 1 || math.IsNaN(p.SNQuantile)):
		return fmt.Errorf("%w: snQuantile must be in (0, 1), got %g", ErrInput, p.SNQuantile)
	case p.MinSkyFrac < 0 || p.MinSkyFrac > 1:
		return fmt.Errorf("%w: minSkyFrac must be in [0, 1], got %g", ErrInput, p.MinSkyFrac)
	case p.MinNumSky < 1:
		return fmt.Errorf("%w: minNumSky must be at least 1, got %d", ErrInput, p.MinNumSky)
	case p.MinRiverLength < 0:
		return fmt.Errorf("%w: minRiverLength cannot be negative, got %d", ErrInput, p.MinRiverLength)
	case p.ClipMultiple <= 0:
		return fmt.Errorf("%w: sigma clip multiple must be positive, got %g", ErrInput, p.ClipMultiple)
	case p.ClipTolerance <= 0:
		return fmt.Errorf("%w: sigma clip tolerance must be positive, got %g", ErrInput, p.ClipTolerance)
	case p.CPSCorrection < 0:
		return fmt.Errorf("%w: cpsCorrection cannot be negative, got %g", ErrInput, p.CPSCorrection)
	case p.NumThreads < 0:
		return fmt.Errorf("%w: numThreads cannot be negative, got %d", ErrInput, p.NumThreads)
	}
	return nil
}

func (p Params) threads() int {
	if p.NumThreads > 0 {
		return p.NumThreads
	}
	return runtime.NumCPU()
}

// sign is +1 when clumps grow from maxima and -1 for minima, so that every
// comparison can be written for maxima only.
func (p Params) sign() float64 {
	if p.FindMinima {
		return -1
	}
	return 1
}
