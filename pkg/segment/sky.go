package segment

import (
	"context"
	"fmt"
	"math"

	"astroseg/internal/models"
	"astroseg/pkg/label"
	"astroseg/pkg/stats"
	"astroseg/pkg/tile"

	"github.com/sirupsen/logrus"
)

// Sky is the outcome of the background measurement.
type Sky struct {
	// Threshold is the S/N a clump in a detection must exceed.
	Threshold float64
	// SN holds the usable sky clump S/N values, tile by tile.
	SN []float64
	// Tiles is the number of tiles that took part.
	Tiles int
}

// ThresholdFromSample returns the q quantile of a sky S/N sample. NaN
// values are ignored; fewer than minCount valid values is an
// ErrInsufficientSky error.
func ThresholdFromSample(sample []float64, q float64, minCount int) (float64, error) {
	valid := stats.Float64s(sample)
	if len(valid) < minCount || len(valid) == 0 {
		return 0, insufficientSky(len(valid), minCount)
	}
	th := stats.Quantile(valid, q)
	if math.IsNaN(th) {
		return 0, fmt.Errorf("%w: quantile %g is outside (0, 1]", ErrInput, q)
	}
	return th, nil
}

// learnSky runs the watershed and the significance estimator on the
// undetected pixels of every tile that is mostly undetected, and derives
// the S/N threshold from the pooled clump S/N values. The outer ring of
// each tile is treated as river so clumps are not cut by the tile edge.
// Peaks next to a river are only rejected inside detections, so every sky
// clump with an S/N counts. When snap is not nil the sky clump labels
// are written into it.
func (s *Segmenter) learnSky(ctx context.Context, d *dataset, snap *models.Labels) (*Sky, error) {
	if d.tiles == nil {
		return nil, fmt.Errorf("%w: a tessellation is needed to measure the sky S/N threshold", ErrInput)
	}
	p := s.params
	tess := d.tiles
	grid := label.Grid{Width: d.img.Width, Height: d.img.Height}
	perTile := make([][]float64, tess.Len())
	used := make([]bool, tess.Len())

	err := runRegions(ctx, tess.Len(), p.threads(), func(ctx context.Context, id int) error {
		idx := tile.Undetected(tess, id, d.img, d.det)
		box := tess.Tiles[id].Box
		if len(idx) == 0 || float64(len(idx)) < p.MinSkyFrac*float64(box.Dx()*box.Dy()) {
			return nil
		}

		r := models.NewRegion(id, idx, d.img.Width)
		w := newWorkspace(r, grid, p.Connectivity, d.img, d.conv)
		for q, i := range w.pix {
			if w.kind[q] != label.Blank && tess.OnBorder(i) {
				w.setRiver(q)
			}
		}

		n := w.watershed(d.conv.Data, p.sign())
		tab := w.significance(n, d.img.Data, d.conv.Data, d.noise, p, d.corr)
		for k := 1; k <= n; k++ {
			if sn := tab[k].SN; !math.IsNaN(sn) {
				perTile[id] = append(perTile[id], sn)
			}
		}
		used[id] = true

		if snap != nil {
			w.export(snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sky := &Sky{}
	for id := range perTile {
		sky.SN = append(sky.SN, perTile[id]...)
		if used[id] {
			sky.Tiles++
		}
	}
	th, err := ThresholdFromSample(sky.SN, p.SNQuantile, p.MinNumSky)
	if err != nil {
		return nil, err
	}
	sky.Threshold = th

	s.log.WithFields(logrus.Fields{
		"stage":     StageSky,
		"tiles":     sky.Tiles,
		"clumps":    len(sky.SN),
		"threshold": th,
	}).Info("Sky S/N threshold learned")
	return sky, nil
}
