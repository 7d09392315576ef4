package testsupport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/x448/float16"

	"thumbconv/internal/imageio"
)

// OpenEXR compression methods understood by WriteEXR.
const (
	EXRNone uint8 = 0
	EXRRLE  uint8 = 1
	EXRZIPS uint8 = 2
	EXRZIP  uint8 = 3
)

// EXRPart describes one part of a generated OpenEXR file.
type EXRPart struct {
	Name        string
	Compression uint8
	// Half stores channels as 16-bit floats instead of 32-bit.
	Half bool
	// Levels holds the part's pixels. Tiled parts with more than one level
	// need the complete round-down mip chain. A deep Levels[0] writes a deep
	// scanline part.
	Levels []*imageio.Buffer
	// TileSize > 0 writes a tiled part with square tiles.
	TileSize   int
	Attributes map[string]string
}

// WriteEXR encodes parts to path, creating parent directories.
func WriteEXR(t testing.TB, path string, parts ...EXRPart) {
	t.Helper()

	data, err := EncodeEXR(parts...)
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// EncodeEXR returns the bytes of an OpenEXR file holding parts. More than one
// part produces a multi-part file.
func EncodeEXR(parts ...EXRPart) ([]byte, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no parts")
	}
	multipart := len(parts) > 1

	version := uint32(2)
	if multipart {
		version |= 0x1000
	} else if parts[0].TileSize > 0 {
		version |= 0x200
	} else if isDeep(parts[0]) {
		version |= 0x800
	}

	var out bytes.Buffer
	writeU32(&out, 20000630)
	writeU32(&out, version)

	chunks := make([][][]byte, len(parts))
	for i, p := range parts {
		if len(p.Levels) == 0 || p.Levels[0] == nil {
			return nil, fmt.Errorf("part %d has no pixels", i)
		}
		var err error
		switch {
		case isDeep(p):
			chunks[i], err = deepChunks(p)
		case p.TileSize > 0:
			chunks[i], err = tileChunks(p)
		default:
			chunks[i], err = scanlineChunks(p, p.Levels[0])
		}
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		writeHeader(&out, p, multipart, len(chunks[i]))
	}
	if multipart {
		out.WriteByte(0)
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	offset := uint64(out.Len() + 8*total)
	prefix := 0
	if multipart {
		prefix = 4
	}
	for _, part := range chunks {
		for _, chunk := range part {
			writeU64(&out, offset)
			offset += uint64(prefix + len(chunk))
		}
	}
	for i, part := range chunks {
		for _, chunk := range part {
			if multipart {
				writeU32(&out, uint32(i))
			}
			out.Write(chunk)
		}
	}
	return out.Bytes(), nil
}

func isDeep(p EXRPart) bool {
	return len(p.Levels) > 0 && p.Levels[0] != nil && p.Levels[0].Deep != nil
}

func writeHeader(out *bytes.Buffer, p EXRPart, multipart bool, chunkCount int) {
	base := p.Levels[0]
	w, h := base.Spec.Width, base.Spec.Height

	var ch bytes.Buffer
	for _, name := range base.Spec.ChannelNames {
		ch.WriteString(name)
		ch.WriteByte(0)
		writeU32(&ch, pixelType(p))
		ch.Write([]byte{0, 0, 0, 0})
		writeU32(&ch, 1)
		writeU32(&ch, 1)
	}
	ch.WriteByte(0)
	writeAttr(out, "channels", "chlist", ch.Bytes())
	writeAttr(out, "compression", "compression", []byte{p.Compression})

	var box bytes.Buffer
	for _, v := range []int32{0, 0, int32(w - 1), int32(h - 1)} {
		writeU32(&box, uint32(v))
	}
	writeAttr(out, "dataWindow", "box2i", box.Bytes())
	writeAttr(out, "displayWindow", "box2i", box.Bytes())
	writeAttr(out, "lineOrder", "lineOrder", []byte{0})

	if p.TileSize > 0 {
		var tiles bytes.Buffer
		writeU32(&tiles, uint32(p.TileSize))
		writeU32(&tiles, uint32(p.TileSize))
		mode := byte(0)
		if len(p.Levels) > 1 {
			mode = 1
		}
		tiles.WriteByte(mode)
		writeAttr(out, "tiles", "tiledesc", tiles.Bytes())
	}

	keys := make([]string, 0, len(p.Attributes))
	for k := range p.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeAttr(out, k, "string", []byte(p.Attributes[k]))
	}

	if multipart {
		kind := "scanlineimage"
		switch {
		case isDeep(p):
			kind = "deepscanline"
		case p.TileSize > 0:
			kind = "tiledimage"
		}
		name := p.Name
		if name == "" {
			name = "part"
		}
		writeAttr(out, "name", "string", []byte(name))
		writeAttr(out, "type", "string", []byte(kind))
		var count bytes.Buffer
		writeU32(&count, uint32(chunkCount))
		writeAttr(out, "chunkCount", "int", count.Bytes())
	}
	out.WriteByte(0)
}

func linesPerBlock(compression uint8) int {
	if compression == EXRZIP {
		return 16
	}
	return 1
}

func scanlineChunks(p EXRPart, buf *imageio.Buffer) ([][]byte, error) {
	w, h := buf.Spec.Width, buf.Spec.Height
	lpb := linesPerBlock(p.Compression)
	var chunks [][]byte
	for y := 0; y < h; y += lpb {
		lines := min(lpb, h-y)
		packed, err := compress(p.Compression, rows(p, buf, 0, y, w, lines))
		if err != nil {
			return nil, err
		}
		var c bytes.Buffer
		writeU32(&c, uint32(y))
		writeU32(&c, uint32(len(packed)))
		c.Write(packed)
		chunks = append(chunks, c.Bytes())
	}
	return chunks, nil
}

func tileChunks(p EXRPart) ([][]byte, error) {
	ts := p.TileSize
	base := p.Levels[0].Spec
	var chunks [][]byte
	for l, buf := range p.Levels {
		wantW, wantH := max(base.Width>>l, 1), max(base.Height>>l, 1)
		if buf.Spec.Width != wantW || buf.Spec.Height != wantH {
			return nil, fmt.Errorf("level %d is %dx%d, want %dx%d", l, buf.Spec.Width, buf.Spec.Height, wantW, wantH)
		}
		for ty := 0; ty*ts < wantH; ty++ {
			for tx := 0; tx*ts < wantW; tx++ {
				tw, th := min(ts, wantW-tx*ts), min(ts, wantH-ty*ts)
				packed, err := compress(p.Compression, rows(p, buf, tx*ts, ty*ts, tw, th))
				if err != nil {
					return nil, err
				}
				var c bytes.Buffer
				for _, v := range []int{tx, ty, l, l, len(packed)} {
					writeU32(&c, uint32(v))
				}
				c.Write(packed)
				chunks = append(chunks, c.Bytes())
			}
		}
	}
	return chunks, nil
}

func deepChunks(p EXRPart) ([][]byte, error) {
	buf := p.Levels[0]
	w, h := buf.Spec.Width, buf.Spec.Height
	n := buf.Spec.NChannels()
	lpb := linesPerBlock(p.Compression)
	var chunks [][]byte
	for y := 0; y < h; y += lpb {
		lines := min(lpb, h-y)
		var counts, samples bytes.Buffer
		for l := 0; l < lines; l++ {
			total := 0
			for x := 0; x < w; x++ {
				total += len(buf.Deep.Samples[(y+l)*w+x]) / n
				writeU32(&counts, uint32(total))
			}
		}
		for l := 0; l < lines; l++ {
			for c := 0; c < n; c++ {
				for x := 0; x < w; x++ {
					s := buf.Deep.Samples[(y+l)*w+x]
					for i := 0; i < len(s)/n; i++ {
						writeSample(&samples, p, s[i*n+c])
					}
				}
			}
		}
		packedCounts, err := compress(p.Compression, counts.Bytes())
		if err != nil {
			return nil, err
		}
		packedSamples, err := compress(p.Compression, samples.Bytes())
		if err != nil {
			return nil, err
		}
		var c bytes.Buffer
		writeU32(&c, uint32(y))
		writeU64(&c, uint64(len(packedCounts)))
		writeU64(&c, uint64(len(packedSamples)))
		writeU64(&c, uint64(samples.Len()))
		c.Write(packedCounts)
		c.Write(packedSamples)
		chunks = append(chunks, c.Bytes())
	}
	return chunks, nil
}

// rows serialises a block line by line, channel by channel.
func rows(p EXRPart, buf *imageio.Buffer, x0, y0, w, lines int) []byte {
	var out bytes.Buffer
	n := buf.Spec.NChannels()
	for y := y0; y < y0+lines; y++ {
		for c := 0; c < n; c++ {
			for x := x0; x < x0+w; x++ {
				writeSample(&out, p, buf.Pixels[(y*buf.Spec.Width+x)*n+c])
			}
		}
	}
	return out.Bytes()
}

func compress(method uint8, raw []byte) ([]byte, error) {
	if method == EXRNone || len(raw) == 0 {
		return raw, nil
	}
	t := make([]byte, len(raw))
	half := (len(raw) + 1) / 2
	for i, b := range raw {
		if i%2 == 0 {
			t[i/2] = b
		} else {
			t[half+i/2] = b
		}
	}
	for i := len(t) - 1; i > 0; i-- {
		t[i] = byte(int(t[i]) - int(t[i-1]) + 128)
	}

	var packed []byte
	switch method {
	case EXRRLE:
		packed = runLengthEncode(t)
	case EXRZIPS, EXRZIP:
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(t); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		packed = z.Bytes()
	default:
		return nil, fmt.Errorf("compression %d not supported", method)
	}
	if len(packed) >= len(raw) {
		return raw, nil
	}
	return packed, nil
}

func runLengthEncode(in []byte) []byte {
	var out []byte
	for i := 0; i < len(in); {
		run := 1
		for i+run < len(in) && in[i+run] == in[i] && run < 128 {
			run++
		}
		if run >= 3 {
			out = append(out, byte(run-1), in[i])
			i += run
			continue
		}
		start := i
		for i < len(in) && i-start < 127 {
			if i+2 < len(in) && in[i] == in[i+1] && in[i+1] == in[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(int8(-(i - start))))
		out = append(out, in[start:i]...)
	}
	return out
}

func pixelType(p EXRPart) uint32 {
	if p.Half {
		return 1
	}
	return 2
}

func writeSample(out *bytes.Buffer, p EXRPart, v float32) {
	if p.Half {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], float16.Fromfloat32(v).Bits())
		out.Write(b[:])
		return
	}
	writeU32(out, math.Float32bits(v))
}

func writeAttr(out *bytes.Buffer, name, typ string, val []byte) {
	out.WriteString(name)
	out.WriteByte(0)
	out.WriteString(typ)
	out.WriteByte(0)
	writeU32(out, uint32(len(val)))
	out.Write(val)
}

func writeU32(out *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	out.Write(b[:])
}

func writeU64(out *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	out.Write(b[:])
}
