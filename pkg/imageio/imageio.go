// Package imageio reads the input arrays of the segmentation engine and
// writes its label maps.
//
// Grayscale TIFF and PNG files carry 8 or 16 bit integer pixels. Float
// images with blank (NaN) pixels and int32 label maps round-trip through a
// zstd-compressed raw container (extension ".seg").
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"golang.org/x/image/tiff"

	"astroseg/internal/models"
	"astroseg/pkg/label"
)

// Format identifies a supported file type.
type Format int

const (
	FormatTIFF Format = iota + 1
	FormatPNG
	FormatRaw
)

// RawExt is the file extension of the raw container.
const RawExt = ".seg"

// SupportedFormats lists the recognised file extensions.
var SupportedFormats = []string{".tif", ".tiff", ".png", RawExt}

// ErrFormat is returned for unknown file extensions and unsupported content.
var ErrFormat = errors.New("unsupported image format")

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".png":
		return FormatPNG, nil
	case RawExt:
		return FormatRaw, nil
	}
	return 0, fmt.Errorf("%w: %s (supported: %s)", ErrFormat, path, strings.Join(SupportedFormats, ", "))
}

// ReadImage loads a float image. Integer files are converted to their gray
// level in native units; a raw int32 container is widened to float64.
func ReadImage(path string) (*models.Image, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if f == FormatRaw {
		r, err := readRaw(path)
		if err != nil {
			return nil, err
		}
		img := models.NewImage(r.Width, r.Height)
		if r.Kind == KindFloat64 {
			copy(img.Data, r.Floats)
		} else {
			for i, v := range r.Ints {
				img.Data[i] = float64(v)
			}
		}
		return img, nil
	}

	src, err := decode(path, f)
	if err != nil {
		return nil, err
	}
	w, h, gray := grayLevels(src)
	img := models.NewImage(w, h)
	for i, v := range gray {
		img.Data[i] = float64(v)
	}
	return img, nil
}

// ReadLabels loads an integer label map, such as a detection map. Float
// containers are rejected since labels must be exact.
func ReadLabels(path string) (*models.Labels, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if f == FormatRaw {
		r, err := readRaw(path)
		if err != nil {
			return nil, err
		}
		if r.Kind != KindInt32 {
			return nil, fmt.Errorf("%w: %s holds %v values, expected int32 labels", ErrFormat, path, r.Kind)
		}
		return &models.Labels{Width: r.Width, Height: r.Height, Data: r.Ints}, nil
	}

	src, err := decode(path, f)
	if err != nil {
		return nil, err
	}
	w, h, gray := grayLevels(src)
	l := models.NewLabels(w, h)
	for i, v := range gray {
		l.Data[i] = int32(v)
	}
	return l, nil
}

// WriteImage stores a float image in the raw container.
func WriteImage(path string, img *models.Image) error {
	if f, err := FormatOf(path); err != nil {
		return err
	} else if f != FormatRaw {
		return fmt.Errorf("%w: float images are only written as %s", ErrFormat, RawExt)
	}
	return writeRaw(path, &raw{Width: img.Width, Height: img.Height, Kind: KindFloat64, Floats: img.Data})
}

// WriteLabels stores a label map. TIFF and PNG files hold 16 bit labels:
// blank pixels are written as 0 and other values must fit in [0, 65535].
func WriteLabels(path string, l *models.Labels) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	if f == FormatRaw {
		return writeRaw(path, &raw{Width: l.Width, Height: l.Height, Kind: KindInt32, Ints: l.Data})
	}

	img, err := labelsToGray16(l)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if f == FormatPNG {
		return imgio.Save(path, img, imgio.PNGEncoder())
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return file.Close()
}

func labelsToGray16(l *models.Labels) (*image.Gray16, error) {
	img := image.NewGray16(image.Rect(0, 0, l.Width, l.Height))
	for i, v := range l.Data {
		if v == label.BlankValue {
			continue
		}
		if v < 0 || v > 0xffff {
			x, y := i%l.Width, i/l.Width
			return nil, fmt.Errorf("%w: label %d at (%d,%d) does not fit in 16 bits", ErrFormat, v, x, y)
		}
		img.SetGray16(i%l.Width, i/l.Width, color.Gray16{Y: uint16(v)})
	}
	return img, nil
}

func decode(path string, f Format) (image.Image, error) {
	if f == FormatPNG {
		img, err := imgio.Open(path)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return img, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := tiff.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// grayLevels flattens an image into row-major gray levels. 8 and 16 bit
// grayscale images keep their stored values; anything else is converted
// to 16 bit luminance.
func grayLevels(img image.Image) (w, h int, out []uint16) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	out = make([]uint16, w*h)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[y*w+x] = uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				out[y*w+x] = c.Y
			}
		}
	}
	return w, h, out
}

func readRaw(path string) (*raw, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r, err := decodeRaw(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func writeRaw(path string, r *raw) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeRaw(file, r); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return file.Close()
}
