// Package checkimg writes diagnostic output of a segmentation run: label
// maps rendered as coloured PNGs, the raw maps of every pipeline stage and
// plain text tables of clump measurements.
package checkimg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"astroseg/internal/models"
	"astroseg/pkg/imageio"
	"astroseg/pkg/label"
	"astroseg/pkg/segment"
)

// Fixed colours of the non-label pixel states.
var (
	UnsetColor = color.NRGBA{A: 0xff}
	RiverColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	BlankColor = color.NRGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xff}
)

// goldenAngle spreads consecutive label hues around the colour wheel.
const goldenAngle = 137.50776405003785

// Renderer turns label maps and images into viewable pictures.
type Renderer struct {
	// Scale is the integer upscaling factor; 1 keeps one screen pixel per
	// image pixel.
	Scale int
}

// NewRenderer creates a renderer, clamping scale to at least 1.
func NewRenderer(scale int) *Renderer {
	if scale < 1 {
		scale = 1
	}
	return &Renderer{Scale: scale}
}

// LabelColor returns the display colour of a label value.
func LabelColor(v int32) color.NRGBA {
	switch {
	case v == 0:
		return UnsetColor
	case v == label.RiverValue:
		return RiverColor
	case v < 0:
		return BlankColor
	}
	hue := math.Mod(float64(v)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 0.65, 0.95).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// Labels renders a label map.
func (r *Renderer) Labels(l *models.Labels) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, l.Width, l.Height))
	for i, v := range l.Data {
		img.SetNRGBA(i%l.Width, i/l.Width, LabelColor(v))
	}
	return r.upscale(img)
}

// Signal renders an image linearly stretched between its minimum and
// maximum. Blank pixels are black.
func (r *Renderer) Signal(im *models.Image) image.Image {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range im.Data {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}

	img := image.NewGray16(image.Rect(0, 0, im.Width, im.Height))
	span := hi - lo
	for i, v := range im.Data {
		if math.IsNaN(v) || !(span > 0) {
			continue
		}
		value := uint16(math.Max(0, math.Min(65535, (v-lo)/span*65535)))
		img.SetGray16(i%im.Width, i/im.Width, color.Gray16{Y: value})
	}
	return r.upscale(img)
}

func (r *Renderer) upscale(img image.Image) image.Image {
	if r.Scale <= 1 {
		return img
	}
	b := img.Bounds()
	return imaging.Resize(img, b.Dx()*r.Scale, b.Dy()*r.Scale, imaging.NearestNeighbor)
}

// Save writes a rendered picture as PNG.
func (r *Renderer) Save(img image.Image, filename string) error {
	if err := imgio.Save(filename, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("save %s: %w", filename, err)
	}
	return nil
}

// SaveSnapshots writes every stage snapshot twice into dir: a coloured
// PNG and the exact label values in the raw container. Files are numbered
// in pipeline order, e.g. 02_filter.png.
func (r *Renderer) SaveSnapshots(dir string, snaps []segment.Snapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create check directory: %w", err)
	}

	for k, s := range snaps {
		base := filepath.Join(dir, fmt.Sprintf("%02d_%s", k+1, s.Stage))
		if err := r.Save(r.Labels(s.Labels), base+".png"); err != nil {
			return err
		}
		if err := imageio.WriteLabels(base+imageio.RawExt, s.Labels); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable writes one line per clump.
func WriteTable(w io.Writer, rows []segment.ClumpRow) error {
	if _, err := fmt.Fprintf(w, "# %6s %7s %7s %7s %7s %7s %14s %12s %10s\n",
		"id", "object", "inobj", "det", "indet", "area", "sum", "background", "sn"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "  %6d %7d %7d %7d %7d %7d %14.6g %12.6g %10.4f\n",
			r.ID, r.HostObject, r.IDInObject, r.HostDetection, r.IDInDetection,
			r.Area, r.Sum, r.Background, r.SN); err != nil {
			return err
		}
	}
	return nil
}

// WriteSkySN writes the sky clump S/N sample and the threshold taken
// from it.
func WriteSkySN(w io.Writer, sky *segment.Sky) error {
	if _, err := fmt.Fprintf(w, "# threshold %.6f from %d sky clumps\n", sky.Threshold, len(sky.SN)); err != nil {
		return err
	}
	for _, v := range sky.SN {
		if _, err := fmt.Fprintf(w, "%.6f\n", v); err != nil {
			return err
		}
	}
	return nil
}
