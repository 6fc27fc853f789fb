package segment

import (
	"fmt"

	"astroseg/internal/models"
	"astroseg/pkg/label"
)

// The functions below run one stage on a single region of a shared label
// map, for callers that drive the stages themselves. Each loads the
// region's pixels from m, works on a private copy and stores the result
// back; only pixels of r are written.

// Significance measures the n clumps that m holds on region r. values is
// the image the sums are taken on and signal the image the watershed ran
// on.
func Significance(values, signal *models.Image, m *label.Map, r *models.Region, n int, noise Noise, p Params) ([]ClumpStats, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	corr, err := cpsCorrection(p, noise)
	if err != nil {
		return nil, err
	}
	w := newWorkspace(r, m.Grid, p.Connectivity, values, signal)
	w.load(m)
	if err := w.checkIDs(n); err != nil {
		return nil, err
	}
	return w.significance(n, values.Data, signal.Data, noise, p, corr), nil
}

// FilterAndGrow keeps the clumps of tab whose S/N is above threshold,
// renumbers them densely and grows them over region r in two passes: first
// over pixels brighter than GThresh times the noise, then over everything
// left. It returns the number of true clumps. With no true clump the
// region is left Unset. Every clump id on r must index a row of tab.
func FilterAndGrow(values *models.Image, m *label.Map, r *models.Region, tab []ClumpStats, threshold float64, noise Noise, p Params) (int, error) {
	w := newWorkspace(r, m.Grid, p.Connectivity, values)
	w.load(m)
	if err := w.checkIDs(len(tab) - 1); err != nil {
		return 0, err
	}
	ntrue := len(w.filter(tab, threshold, p.KeepMaxNearRiver))
	if ntrue > 0 {
		w.growBright(values.Data, noise, p)
		w.growAll(values.Data, p.sign())
	}
	w.store(m)
	return ntrue, nil
}

// checkIDs reports a clump id on the workspace above n.
func (w *workspace) checkIDs(n int) error {
	if id := w.maxID(); int(id) > n {
		return fmt.Errorf("%w: region %d holds clump %d but only %d clumps were given", ErrInput, w.region.ID, id, n)
	}
	return nil
}

// MergeToObjects measures the borders between the n grown clumps that m
// holds on region r and groups the clumps into objects. It returns the
// adjacency, the object of every clump (index 0 unused) and the number of
// objects.
func MergeToObjects(values *models.Image, m *label.Map, r *models.Region, n int, noise Noise, p Params) (*Adjacency, []int32, int, error) {
	if n < 1 {
		return nil, nil, 0, fmt.Errorf("%w: merging needs at least one clump", ErrInput)
	}
	if err := p.Validate(); err != nil {
		return nil, nil, 0, err
	}
	corr, err := cpsCorrection(p, noise)
	if err != nil {
		return nil, nil, 0, err
	}
	w := newWorkspace(r, m.Grid, p.Connectivity, values)
	w.load(m)
	if err := w.checkIDs(n); err != nil {
		return nil, nil, 0, err
	}
	adj := w.adjacency(n, values.Data, noise, p, corr)
	clumpToObject, nobj := adj.Objects()
	return adj, clumpToObject, nobj, nil
}
