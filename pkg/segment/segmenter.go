// Package segment splits detected regions of an astronomical image into
// clumps and objects.
//
// The engine first learns how significant a clump found purely in noise
// can be, by running the watershed over the undetected background. Inside
// every detection it then keeps only the clumps above that threshold, grows
// them over the detection and joins touching clumps into objects when the
// signal along their shared border is strong enough. Detections are
// independent and are processed concurrently.
package segment

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"astroseg/internal/models"
	"astroseg/pkg/label"
	"astroseg/pkg/tile"

	"github.com/sirupsen/logrus"
)

// Stage names the steps of the pipeline, in order.
type Stage string

const (
	StageSky       Stage = "sky"
	StageWatershed Stage = "watershed"
	StageFilter    Stage = "filter"
	StageGrow      Stage = "grow"
	StageMerge     Stage = "merge"
	StageRelabel   Stage = "relabel"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageSky, StageWatershed, StageFilter, StageGrow, StageMerge, StageRelabel}

// Snapshot is the label map at the end of one stage. Clumps or objects
// carry their local ids (global ids for the relabel stage), rivers are
// label.RiverValue and blanks label.BlankValue.
type Snapshot struct {
	Stage  Stage
	Labels *models.Labels
}

// Input is the data of one segmentation run.
type Input struct {
	// Image is the sky-subtracted image.
	Image *models.Image
	// Convolved is the smoothed image the watershed runs on. When nil the
	// image itself is used.
	Convolved *models.Image
	// Detections is the detection map. When nil the whole image is one
	// detection.
	Detections *models.Labels
	// Noise is the background standard deviation. When nil it is measured
	// on the undetected pixels of every tile.
	Noise Noise
	// Tiles is the tessellation used for the sky measurement.
	Tiles *tile.Tessellation
}

// ClumpRow describes one true clump of the output.
type ClumpRow struct {
	ID            int
	HostObject    int
	IDInObject    int
	HostDetection int
	IDInDetection int
	Area          int
	Sum           float64
	Background    float64
	SN            float64
	// Peak is the flat index of the brightest pixel of the clump.
	Peak int
}

// Result is the outcome of a segmentation run.
type Result struct {
	// Clumps holds the true clumps before growth with globally unique ids.
	// Detected pixels outside them and undetected pixels are 0.
	Clumps *models.Labels
	// Objects gives every non-blank detected pixel a positive object id.
	// Undetected pixels are 0.
	Objects *models.Labels

	NumDetections int
	NumClumps     int
	NumObjects    int

	// Threshold is the clump S/N threshold that was applied.
	Threshold float64
	// Sky is the background measurement, nil when the threshold was given.
	Sky *Sky

	// Table has one row per clump, sorted by ID.
	Table []ClumpRow

	// Snapshots holds the label maps after every stage when requested.
	Snapshots []Snapshot
}

// Segmenter runs the segmentation pipeline.
type Segmenter struct {
	params Params
	log    logrus.FieldLogger
}

// New creates a segmenter. A nil logger discards all messages.
func New(params Params, log logrus.FieldLogger) (*Segmenter, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Segmenter{params: params, log: log}, nil
}

// Params returns the parameters of the segmenter.
func (s *Segmenter) Params() Params { return s.params }

// dataset is the validated input shared read-only by all workers.
type dataset struct {
	img   *models.Image
	conv  *models.Image
	det   *models.Labels
	ndet  int
	noise Noise
	tiles *tile.Tessellation
	corr  float64
}

// prepare validates the input and fills in the optional parts.
func (s *Segmenter) prepare(in Input) (*dataset, error) {
	p := s.params
	if in.Image == nil || in.Image.Width <= 0 || in.Image.Height <= 0 {
		return nil, fmt.Errorf("%w: an image with at least one pixel is required", ErrInput)
	}
	img := in.Image
	if len(img.Data) != img.Width*img.Height {
		return nil, fmt.Errorf("%w: %d pixel values for a %dx%d image", ErrInput, len(img.Data), img.Width, img.Height)
	}

	conv := in.Convolved
	if conv == nil {
		conv = img
	}
	if !models.SameShape(img.Width, img.Height, conv.Width, conv.Height) || len(conv.Data) != len(img.Data) {
		return nil, fmt.Errorf("%w: convolved image is %dx%d but the image is %dx%d",
			ErrInput, conv.Width, conv.Height, img.Width, img.Height)
	}
	for i, v := range conv.Data {
		if math.IsNaN(v) != img.IsBlank(i) {
			x, y := img.Coords(i)
			return nil, fmt.Errorf("%w: image and convolved image disagree on blank pixel (%d, %d)", ErrInput, x, y)
		}
	}

	if in.Tiles != nil && (in.Tiles.Width != img.Width || in.Tiles.Height != img.Height) {
		return nil, fmt.Errorf("%w: tessellation is %dx%d but the image is %dx%d",
			ErrInput, in.Tiles.Width, in.Tiles.Height, img.Width, img.Height)
	}

	det, ndet, err := label.PrepareDetections(img, in.Detections)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	noise := in.Noise
	if noise == nil {
		if in.Tiles == nil {
			return nil, fmt.Errorf("%w: without a noise model a tessellation is needed to measure it", ErrInput)
		}
		std, err := tile.EstimateStd(img, det, in.Tiles, p.MinSkyFrac, p.ClipMultiple, p.ClipTolerance)
		if err != nil {
			return nil, fmt.Errorf("%w: measuring the sky noise: %w", ErrInput, err)
		}
		noise = NewTileNoise(std, false)
	}

	corr, err := cpsCorrection(p, noise)
	if err != nil {
		return nil, err
	}

	return &dataset{
		img:   img,
		conv:  conv,
		det:   det,
		ndet:  ndet,
		noise: noise,
		tiles: in.Tiles,
		corr:  corr,
	}, nil
}

// outputs are the label maps shared by all region workers. Every worker
// writes only the pixels of its own region.
type outputs struct {
	clumps  *models.Labels
	objects *models.Labels
	snaps   map[Stage]*models.Labels
}

func newOutputs(img *models.Image, snapshots bool) *outputs {
	blankInit := func() *models.Labels {
		l := models.NewLabels(img.Width, img.Height)
		for i := range l.Data {
			if img.IsBlank(i) {
				l.Data[i] = label.BlankValue
			}
		}
		return l
	}

	o := &outputs{clumps: blankInit(), objects: blankInit()}
	if snapshots {
		o.snaps = make(map[Stage]*models.Labels, len(Stages))
		for _, st := range Stages[:len(Stages)-1] {
			o.snaps[st] = blankInit()
		}
	}
	return o
}

// snap returns the snapshot buffer of a stage, or nil when snapshots are off.
func (o *outputs) snap(st Stage) *models.Labels {
	if o.snaps == nil {
		return nil
	}
	return o.snaps[st]
}

// Process runs the whole pipeline: sky threshold, then every detection
// through watershed, filter, growth, merging and global relabelling. It
// either returns the complete result or an error; there is no partial
// output.
func (s *Segmenter) Process(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	p := s.params

	d, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"width":      d.img.Width,
		"height":     d.img.Height,
		"detections": d.ndet,
		"cpsCorr":    d.corr,
	}).Info("Input prepared")

	out := newOutputs(d.img, p.Snapshots)
	res := &Result{NumDetections: d.ndet}

	// Step 1: the S/N threshold, either given or learned from the sky.
	if p.SNThreshold > 0 {
		res.Threshold = p.SNThreshold
		s.log.WithFields(logrus.Fields{"stage": StageSky, "threshold": res.Threshold}).Info("Using the given S/N threshold")
	} else {
		sky, err := s.learnSky(ctx, d, out.snap(StageSky))
		if err != nil {
			return nil, err
		}
		res.Sky, res.Threshold = sky, sky.Threshold
	}

	// Step 2: every detection on the worker pool.
	regions := label.Regions(d.det, d.ndet)
	rel := &Relabeler{}
	rows := make([][]ClumpRow, len(regions))
	err = runRegions(ctx, len(regions), p.threads(), func(ctx context.Context, k int) error {
		r, err := s.segmentRegion(d, regions[k], res.Threshold, rel, out)
		if err != nil {
			return fmt.Errorf("detection %d: %w", regions[k].ID, err)
		}
		rows[k] = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Step 3: collect the results once every worker is done.
	res.Clumps, res.Objects = out.clumps, out.objects
	res.NumClumps, res.NumObjects = rel.Totals()
	for _, r := range rows {
		res.Table = append(res.Table, r...)
	}
	sort.Slice(res.Table, func(a, b int) bool { return res.Table[a].ID < res.Table[b].ID })

	if p.Snapshots {
		for _, st := range Stages {
			l := out.snap(st)
			if st == StageRelabel {
				l = out.objects.Clone()
			}
			if st == StageSky && res.Sky == nil {
				continue
			}
			res.Snapshots = append(res.Snapshots, Snapshot{Stage: st, Labels: l})
		}
	}

	s.log.WithFields(logrus.Fields{
		"stage":     StageRelabel,
		"regions":   len(regions),
		"threshold": res.Threshold,
		"clumps":    res.NumClumps,
		"objects":   res.NumObjects,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("Segmentation finished")
	return res, nil
}

// segmentRegion runs one detection through every stage and writes its
// pixels of the shared outputs.
func (s *Segmenter) segmentRegion(d *dataset, r *models.Region, threshold float64, rel *Relabeler, out *outputs) ([]ClumpRow, error) {
	p := s.params
	sign := p.sign()
	grid := label.Grid{Width: d.img.Width, Height: d.img.Height}
	w := newWorkspace(r, grid, p.Connectivity, d.img, d.conv)

	// Watershed and significance of the initial clumps.
	ninit := w.watershed(d.conv.Data, sign)
	if snap := out.snap(StageWatershed); snap != nil {
		w.export(snap)
	}
	tab := w.significance(ninit, d.img.Data, d.conv.Data, d.noise, p, d.corr)

	// True clumps.
	kept := w.filter(tab, threshold, p.KeepMaxNearRiver)
	ntrue := len(kept)
	core := make([]int32, w.len())
	for q := range core {
		core[q] = w.clumpID(q)
	}
	if snap := out.snap(StageFilter); snap != nil {
		w.export(snap)
	}

	// Growth and merging into objects.
	var (
		clumpToObject []int32
		nobj          int
	)
	if ntrue <= 1 {
		// One object covers the whole detection.
		clumpToObject = []int32{0, 1}
		if w.nonBlank() > 0 {
			nobj = 1
		}
		for q, kd := range w.kind {
			if kd != label.Blank {
				w.setClump(q, 1)
			}
		}
		if snap := out.snap(StageGrow); snap != nil {
			if ntrue == 1 {
				w.export(snap)
			} else {
				exportZeros(w, snap)
			}
		}
	} else {
		w.growBright(d.img.Data, d.noise, p)
		adj := w.adjacency(ntrue, d.img.Data, d.noise, p, d.corr)
		clumpToObject, nobj = adj.Objects()

		w.growAll(d.img.Data, sign)
		if snap := out.snap(StageGrow); snap != nil {
			w.export(snap)
		}
		if err := w.fillObjects(d.img.Data, sign, clumpToObject); err != nil {
			return nil, err
		}
	}
	if snap := out.snap(StageMerge); snap != nil {
		w.export(snap)
	}

	// Local numbering of clumps inside their objects, then the global
	// offsets for this region.
	idInObject := make([]int, ntrue+1)
	perObject := make([]int, nobj+1)
	for k := 1; k <= ntrue; k++ {
		o := clumpToObject[k]
		perObject[o]++
		idInObject[k] = perObject[o]
	}
	firstOfObject := make([]int, nobj+1)
	for o := 2; o <= nobj; o++ {
		firstOfObject[o] = firstOfObject[o-1] + perObject[o-1]
	}

	clumpOff, objOff := rel.Reserve(ntrue, nobj)
	global := make([]int32, ntrue+1)
	for k := 1; k <= ntrue; k++ {
		o := clumpToObject[k]
		global[k] = clumpOff + int32(firstOfObject[o]+idInObject[k])
	}

	for q, i := range w.pix {
		if w.kind[q] == label.Blank {
			out.clumps.Data[i] = label.BlankValue
			out.objects.Data[i] = label.BlankValue
			continue
		}
		if w.kind[q] != label.Clump {
			return nil, invariantf("region %d: pixel %d was left without an object", r.ID, i)
		}
		out.objects.Data[i] = objOff + w.id[q]
		out.clumps.Data[i] = 0
		if c := core[q]; c > 0 {
			out.clumps.Data[i] = global[c]
		}
	}

	rows := make([]ClumpRow, 0, ntrue)
	for k := 1; k <= ntrue; k++ {
		st := tab[kept[k-1]]
		rows = append(rows, ClumpRow{
			ID:            int(global[k]),
			HostObject:    int(objOff + clumpToObject[k]),
			IDInObject:    idInObject[k],
			HostDetection: r.ID,
			IDInDetection: k,
			Area:          st.Area,
			Sum:           st.Sum,
			Background:    st.Background,
			SN:            st.SN,
			Peak:          st.Peak,
		})
	}

	s.log.WithFields(logrus.Fields{
		"detection": r.ID,
		"pixels":    r.Len(),
		"initial":   ninit,
		"clumps":    ntrue,
		"objects":   nobj,
	}).Debug("Detection segmented")
	return rows, nil
}

// exportZeros clears the region's non-blank pixels of l.
func exportZeros(w *workspace, l *models.Labels) {
	for q, i := range w.pix {
		if w.kind[q] != label.Blank {
			l.Data[i] = 0
		}
	}
}
