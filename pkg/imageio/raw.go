package imageio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Kind is the element type stored in a raw container.
type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindFloat64
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat64:
		return "float64"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) size() int {
	switch k {
	case KindInt32:
		return 4
	case KindFloat64:
		return 8
	}
	return 0
}

const rawVersion = 1

var rawMagic = [4]byte{'S', 'E', 'G', 'A'}

// ErrContainer is returned for malformed raw containers.
var ErrContainer = errors.New("invalid raw container")

// header is the fixed little-endian prefix of a raw container. The payload
// that follows is the zstd-compressed array in row-major order.
type header struct {
	Magic   [4]byte
	Version uint16
	Kind    Kind
	NDim    uint8
	Width   uint32
	Height  uint32
}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

func compressZstd(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := zstdEncPool.Get().(*zstd.Encoder)
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		zstdEncPool.Put(enc)
		return nil, err
	}
	if err := enc.Close(); err != nil {
		zstdEncPool.Put(enc)
		return nil, err
	}

	zstdEncPool.Put(enc)
	return buf.Bytes(), nil
}

func decompressZstd(r io.Reader) ([]byte, error) {
	dec := zstdDecPool.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		zstdDecPool.Put(dec)
		return nil, err
	}

	var out bytes.Buffer
	if _, err := out.ReadFrom(dec); err != nil {
		zstdDecPool.Put(dec)
		return nil, err
	}

	zstdDecPool.Put(dec)
	return out.Bytes(), nil
}

// raw is a decoded container. Exactly one of Ints and Floats is set.
type raw struct {
	Width, Height int
	Kind          Kind
	Ints          []int32
	Floats        []float64
}

func encodeRaw(w io.Writer, r *raw) error {
	n := r.Width * r.Height
	payload := make([]byte, n*r.Kind.size())
	switch r.Kind {
	case KindInt32:
		if len(r.Ints) != n {
			return fmt.Errorf("%w: %d values for a %dx%d array", ErrContainer, len(r.Ints), r.Width, r.Height)
		}
		for i, v := range r.Ints {
			binary.LittleEndian.PutUint32(payload[4*i:], uint32(v))
		}
	case KindFloat64:
		if len(r.Floats) != n {
			return fmt.Errorf("%w: %d values for a %dx%d array", ErrContainer, len(r.Floats), r.Width, r.Height)
		}
		for i, v := range r.Floats {
			binary.LittleEndian.PutUint64(payload[8*i:], math.Float64bits(v))
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrContainer, r.Kind)
	}

	comp, err := compressZstd(payload)
	if err != nil {
		return fmt.Errorf("zstd encode: %w", err)
	}

	h := header{
		Magic:   rawMagic,
		Version: rawVersion,
		Kind:    r.Kind,
		NDim:    2,
		Width:   uint32(r.Width),
		Height:  uint32(r.Height),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	_, err = w.Write(comp)
	return err
}

func decodeRaw(rd io.Reader) (*raw, error) {
	var h header
	if err := binary.Read(rd, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrContainer, err)
	}
	switch {
	case h.Magic != rawMagic:
		return nil, fmt.Errorf("%w: bad magic %q", ErrContainer, h.Magic[:])
	case h.Version != rawVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrContainer, h.Version)
	case h.NDim != 2:
		return nil, fmt.Errorf("%w: %d dimensions, only 2D arrays are supported", ErrContainer, h.NDim)
	case h.Kind.size() == 0:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrContainer, h.Kind)
	}

	payload, err := decompressZstd(rd)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	n := int(h.Width) * int(h.Height)
	if len(payload) != n*h.Kind.size() {
		return nil, fmt.Errorf("%w: payload is %d bytes, expected %d", ErrContainer, len(payload), n*h.Kind.size())
	}

	out := &raw{Width: int(h.Width), Height: int(h.Height), Kind: h.Kind}
	switch h.Kind {
	case KindInt32:
		out.Ints = make([]int32, n)
		for i := range out.Ints {
			out.Ints[i] = int32(binary.LittleEndian.Uint32(payload[4*i:]))
		}
	case KindFloat64:
		out.Floats = make([]float64, n)
		for i := range out.Floats {
			out.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
		}
	}
	return out, nil
}
