package imageio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"astroseg/internal/models"
	"astroseg/pkg/label"
)

func testLabels() *models.Labels {
	l := models.NewLabels(5, 3)
	for i := range l.Data {
		l.Data[i] = int32(i * 1000)
	}
	l.Data[4] = label.BlankValue
	return l
}

func TestFormatOf(t *testing.T) {
	testCases := []struct {
		path string
		want Format
		err  bool
	}{
		{"a.tif", FormatTIFF, false},
		{"dir/b.TIFF", FormatTIFF, false},
		{"c.png", FormatPNG, false},
		{"d.seg", FormatRaw, false},
		{"e.fits", 0, true},
		{"noext", 0, true},
	}

	for _, tc := range testCases {
		got, err := FormatOf(tc.path)
		if tc.err {
			if !errors.Is(err, ErrFormat) {
				t.Errorf("%s: expected ErrFormat, got %v", tc.path, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%s: expected %d, got %d (%v)", tc.path, tc.want, got, err)
		}
	}
}

func TestRawImageRoundTrip(t *testing.T) {
	img := models.NewImage(4, 3)
	for i := range img.Data {
		img.Data[i] = float64(i)*0.25 - 1
	}
	img.Data[5] = math.NaN()

	path := filepath.Join(t.TempDir(), "img.seg")
	if err := WriteImage(path, img); err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}
	got, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if got.Width != 4 || got.Height != 3 {
		t.Fatalf("expected 4x3, got %dx%d", got.Width, got.Height)
	}
	for i := range img.Data {
		if i == 5 {
			if !got.IsBlank(i) {
				t.Error("blank pixel lost")
			}
			continue
		}
		if got.Data[i] != img.Data[i] {
			t.Errorf("pixel %d: expected %g, got %g", i, img.Data[i], got.Data[i])
		}
	}
}

func TestLabelsRoundTrip(t *testing.T) {
	for _, ext := range []string{".seg", ".tif", ".png"} {
		t.Run(ext, func(t *testing.T) {
			l := testLabels()
			path := filepath.Join(t.TempDir(), "labels"+ext)
			if err := WriteLabels(path, l); err != nil {
				t.Fatalf("WriteLabels failed: %v", err)
			}
			got, err := ReadLabels(path)
			if err != nil {
				t.Fatalf("ReadLabels failed: %v", err)
			}
			for i, v := range l.Data {
				want := v
				if v == label.BlankValue && ext != ".seg" {
					want = 0
				}
				if got.Data[i] != want {
					t.Errorf("pixel %d: expected %d, got %d", i, want, got.Data[i])
				}
			}
		})
	}
}

func TestReadImageFromTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.tif")
	if err := WriteLabels(path, testLabels()); err != nil {
		t.Fatalf("WriteLabels failed: %v", err)
	}
	img, err := ReadImage(path)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if img.Data[3] != 3000 || img.Data[14] != 14000 {
		t.Errorf("16 bit values should be kept, got %g and %g", img.Data[3], img.Data[14])
	}
}

func TestWriteLabelsRange(t *testing.T) {
	l := models.NewLabels(2, 2)
	l.Data[3] = 70000
	if err := WriteLabels(filepath.Join(t.TempDir(), "big.tif"), l); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for a label above 65535, got %v", err)
	}
	l.Data[3] = -1
	if err := WriteLabels(filepath.Join(t.TempDir(), "neg.png"), l); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat for a negative label, got %v", err)
	}
	if err := WriteLabels(filepath.Join(t.TempDir(), "ok.seg"), l); err != nil {
		t.Errorf("the raw container holds any int32, got %v", err)
	}
}

func TestReadLabelsRejectsFloats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.seg")
	if err := WriteImage(path, models.NewImage(2, 2)); err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}
	if _, err := ReadLabels(path); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestWriteImageNeedsRaw(t *testing.T) {
	if err := WriteImage(filepath.Join(t.TempDir(), "img.png"), models.NewImage(2, 2)); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestDecodeRawErrors(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		if err := encodeRaw(&buf, &raw{Width: 2, Height: 1, Kind: KindInt32, Ints: []int32{7, -7}}); err != nil {
			t.Fatalf("encodeRaw failed: %v", err)
		}
		return buf.Bytes()
	}

	r, err := decodeRaw(bytes.NewReader(valid()))
	if err != nil {
		t.Fatalf("decodeRaw failed: %v", err)
	}
	if r.Ints[0] != 7 || r.Ints[1] != -7 {
		t.Errorf("unexpected values %v", r.Ints)
	}

	testCases := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"version", func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:], 9); return b }},
		{"kind", func(b []byte) []byte { b[6] = 42; return b }},
		{"dimensions", func(b []byte) []byte { b[7] = 3; return b }},
		{"size", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[8:], 3); return b }},
		{"truncated", func(b []byte) []byte { return b[:10] }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeRaw(bytes.NewReader(tc.mutate(valid()))); !errors.Is(err, ErrContainer) {
				t.Errorf("expected ErrContainer, got %v", err)
			}
		})
	}
}
