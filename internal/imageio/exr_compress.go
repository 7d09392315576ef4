package imageio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/klauspost/compress/zlib"
	"github.com/x448/float16"
)

// exrDecompress returns size bytes of pixel data. Blocks whose compressed
// form would not be smaller are stored raw and pass through unchanged.
func exrDecompress(method uint8, packed []byte, size int) ([]byte, error) {
	if len(packed) == size {
		return packed, nil
	}
	var out []byte
	switch method {
	case exrZIPS, exrZIP:
		zr, err := zlib.NewReader(bytes.NewReader(packed))
		if err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		defer zr.Close()
		out = make([]byte, size)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
	case exrRLE:
		var err error
		if out, err = exrRunLengthDecode(packed, size); err != nil {
			return nil, err
		}
	case exrNoCompression:
		return nil, fmt.Errorf("block holds %d bytes, want %d", len(packed), size)
	default:
		return nil, fmt.Errorf("compression %d not supported", method)
	}
	exrUndoPredictor(out)
	return exrInterleave(out), nil
}

func exrRunLengthDecode(in []byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for i := 0; i < len(in); {
		count := int(int8(in[i]))
		i++
		if count < 0 {
			if i-count > len(in) {
				return nil, fmt.Errorf("rle literal run overruns input")
			}
			out = append(out, in[i:i-count]...)
			i -= count
		} else {
			if i >= len(in) {
				return nil, fmt.Errorf("rle repeat run overruns input")
			}
			for k := 0; k <= count; k++ {
				out = append(out, in[i])
			}
			i++
		}
		if len(out) > size {
			return nil, fmt.Errorf("rle data expands beyond %d bytes", size)
		}
	}
	if len(out) != size {
		return nil, fmt.Errorf("rle data expands to %d bytes, want %d", len(out), size)
	}
	return out, nil
}

func exrUndoPredictor(b []byte) {
	for i := 1; i < len(b); i++ {
		b[i] = byte(int(b[i-1]) + int(b[i]) - 128)
	}
}

// exrInterleave merges the two half-buffers the encoder split even and odd
// bytes into.
func exrInterleave(b []byte) []byte {
	out := make([]byte, len(b))
	half := (len(b) + 1) / 2
	for i := range out {
		if i%2 == 0 {
			out[i] = b[i/2]
		} else {
			out[i] = b[half+i/2]
		}
	}
	return out
}

func exrSample(b []byte, pixelType int32) float32 {
	switch pixelType {
	case exrHalf:
		return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
	case exrFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return float32(binary.LittleEndian.Uint32(b))
}

// sortDeepSamples orders every pixel's samples front to back by channel z.
func sortDeepSamples(samples [][]float32, z, n int) {
	if z < 0 || n == 0 {
		return
	}
	for p, s := range samples {
		count := len(s) / n
		if count < 2 {
			continue
		}
		order := make([]int, count)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return s[order[a]*n+z] < s[order[b]*n+z]
		})
		sorted := make([]float32, 0, len(s))
		for _, i := range order {
			sorted = append(sorted, s[i*n:(i+1)*n]...)
		}
		samples[p] = sorted
	}
}
