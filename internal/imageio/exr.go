package imageio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"os"
	"strconv"
)

const (
	exrMagic         = 20000630
	exrFlagTiled     = 0x200
	exrFlagNonImage  = 0x800
	exrFlagMultipart = 0x1000
)

const (
	exrUint  = 0
	exrHalf  = 1
	exrFloat = 2
)

const (
	exrNoCompression = 0
	exrRLE           = 1
	exrZIPS          = 2
	exrZIP           = 3
)

const (
	exrOneLevel = 0
	exrMipmap   = 1
	exrRipmap   = 2
)

const (
	exrScanline     = "scanlineimage"
	exrTiled        = "tiledimage"
	exrDeepScanline = "deepscanline"
	exrDeepTiled    = "deeptile"
)

var exrCompressionNames = []string{"none", "rle", "zips", "zip", "piz", "pxr24", "b44", "b44a", "dwaa", "dwab"}

// exrColorSpaceKeys are string attributes that may name the colour space.
// OpenEXR pixels are scene-linear unless one of them says otherwise.
var exrColorSpaceKeys = []string{"oiio:ColorSpace", "colorSpace", "colorspace"}

type exrCodec struct{}

// EXRCodec returns a pure-Go OpenEXR reader. It handles scanline, tiled
// (one level, mipmap and the diagonal of ripmap) and deep scanline parts in
// single and multi-part files, with NONE, RLE, ZIPS or ZIP compression.
// Each part is a subimage.
func EXRCodec() Codec {
	return exrCodec{}
}

func (exrCodec) Name() string { return "openexr" }

func (exrCodec) Extensions() []string { return []string{".exr"} }

func (exrCodec) Capabilities() Capabilities {
	return Capabilities{Subimages: true, MipLevels: true, Deep: true}
}

func (exrCodec) Open(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parseEXR(data)
	if err != nil {
		return nil, fmt.Errorf("openexr %s: %w", path, err)
	}
	return f, nil
}

type exrChannel struct {
	name      string
	pixelType int32
	xSampling int32
	ySampling int32
}

func (c exrChannel) size() int {
	if c.pixelType == exrHalf {
		return 2
	}
	return 4
}

type exrPart struct {
	name        string
	kind        string
	channels    []exrChannel
	compression uint8
	xMin, yMin  int32
	xMax, yMax  int32
	tileW       int
	tileH       int
	levelMode   uint8
	roundUp     bool
	chunkCount  int
	offsets     []uint64
	attrs       map[string]string
}

func (p *exrPart) width() int  { return int(p.xMax) - int(p.xMin) + 1 }
func (p *exrPart) height() int { return int(p.yMax) - int(p.yMin) + 1 }

func (p *exrPart) tiled() bool { return p.kind == exrTiled || p.kind == exrDeepTiled }

func (p *exrPart) deep() bool { return p.kind == exrDeepScanline || p.kind == exrDeepTiled }

func (p *exrPart) levelsFor(size int) int {
	n := 0
	if p.roundUp {
		for 1<<n < size {
			n++
		}
	} else {
		for 1<<(n+1) <= size {
			n++
		}
	}
	return n + 1
}

func (p *exrPart) levelSize(base, level int) int {
	v := base >> level
	if p.roundUp {
		v = (base + 1<<level - 1) >> level
	}
	return max(v, 1)
}

func (p *exrPart) levelCount() int {
	if !p.tiled() {
		return 1
	}
	switch p.levelMode {
	case exrMipmap:
		return p.levelsFor(max(p.width(), p.height()))
	case exrRipmap:
		return min(p.levelsFor(p.width()), p.levelsFor(p.height()))
	}
	return 1
}

func (p *exrPart) tilesAcross(base, level, tile int) int {
	return (p.levelSize(base, level) + tile - 1) / tile
}

func (p *exrPart) computeChunkCount() int {
	w, h := p.width(), p.height()
	if !p.tiled() {
		lpb := exrLinesPerBlock(p.compression)
		return (h + lpb - 1) / lpb
	}
	total := 0
	switch p.levelMode {
	case exrMipmap:
		for l := 0; l < p.levelsFor(max(w, h)); l++ {
			total += p.tilesAcross(w, l, p.tileW) * p.tilesAcross(h, l, p.tileH)
		}
	case exrRipmap:
		for ly := 0; ly < p.levelsFor(h); ly++ {
			for lx := 0; lx < p.levelsFor(w); lx++ {
				total += p.tilesAcross(w, lx, p.tileW) * p.tilesAcross(h, ly, p.tileH)
			}
		}
	default:
		total = p.tilesAcross(w, 0, p.tileW) * p.tilesAcross(h, 0, p.tileH)
	}
	return total
}

func (p *exrPart) rowBytes(width int) int {
	total := 0
	for _, ch := range p.channels {
		total += ch.size() * width
	}
	return total
}

func (p *exrPart) colorSpace() string {
	for _, key := range exrColorSpaceKeys {
		if v := p.attrs[key]; v != "" {
			return v
		}
	}
	return "linear"
}

func (p *exrPart) compressionName() string {
	if int(p.compression) < len(exrCompressionNames) {
		return exrCompressionNames[p.compression]
	}
	return strconv.Itoa(int(p.compression))
}

func (p *exrPart) attribute(name, typ string, val []byte) error {
	v := &exrReader{data: val}
	switch {
	case typ == "chlist":
		channels, err := parseEXRChannels(val)
		if err != nil {
			return err
		}
		p.channels = channels
	case name == "compression":
		p.compression = v.u8()
	case name == "dataWindow":
		p.xMin, p.yMin, p.xMax, p.yMax = v.i32(), v.i32(), v.i32(), v.i32()
	case name == "tiles":
		p.tileW, p.tileH = int(v.u32()), int(v.u32())
		mode := v.u8()
		p.levelMode = mode & 0x0f
		p.roundUp = mode>>4 != 0
	case name == "type":
		p.kind = string(val)
	case name == "name":
		p.name = string(val)
	case name == "chunkCount":
		p.chunkCount = int(v.i32())
	case typ == "string":
		p.attrs[name] = string(val)
	case typ == "int":
		p.attrs[name] = strconv.Itoa(int(v.i32()))
	case typ == "float":
		p.attrs[name] = strconv.FormatFloat(float64(math.Float32frombits(v.u32())), 'g', -1, 32)
	}
	if v.err != nil {
		return fmt.Errorf("attribute %s: %w", name, v.err)
	}
	return nil
}

func (p *exrPart) validate() error {
	switch {
	case len(p.channels) == 0:
		return fmt.Errorf("part %q has no channels", p.name)
	case p.xMax < p.xMin || p.yMax < p.yMin:
		return fmt.Errorf("part %q has an empty data window", p.name)
	case p.tiled() && (p.tileW <= 0 || p.tileH <= 0):
		return fmt.Errorf("tiled part %q has no tile description", p.name)
	}
	switch p.kind {
	case exrScanline, exrTiled, exrDeepScanline, exrDeepTiled:
		return nil
	}
	return fmt.Errorf("part %q has unknown type %q", p.name, p.kind)
}

func parseEXRChannels(val []byte) ([]exrChannel, error) {
	r := &exrReader{data: val}
	var channels []exrChannel
	for {
		name := r.cstring()
		if r.err != nil {
			return nil, r.err
		}
		if name == "" {
			return channels, nil
		}
		ch := exrChannel{name: name, pixelType: r.i32()}
		r.take(4) // pLinear and reserved
		ch.xSampling, ch.ySampling = r.i32(), r.i32()
		if r.err != nil {
			return nil, r.err
		}
		if ch.pixelType < exrUint || ch.pixelType > exrFloat {
			return nil, fmt.Errorf("channel %s has unknown pixel type %d", name, ch.pixelType)
		}
		channels = append(channels, ch)
	}
}

func exrLinesPerBlock(compression uint8) int {
	switch compression {
	case 3, 5: // zip, pxr24
		return 16
	case 4, 6, 7, 8: // piz, b44, b44a, dwaa
		return 32
	case 9: // dwab
		return 256
	}
	return 1
}

// exrFile is an opened OpenEXR file. The raw bytes stay in memory so parts
// can be decoded after Close.
type exrFile struct {
	data      []byte
	multipart bool
	parts     []*exrPart
}

func parseEXR(data []byte) (*exrFile, error) {
	r := &exrReader{data: data}
	if r.u32() != exrMagic || r.err != nil {
		return nil, fmt.Errorf("not an OpenEXR file")
	}
	version := r.u32()
	if version&0xff != 2 {
		return nil, fmt.Errorf("unsupported OpenEXR version %d", version&0xff)
	}
	f := &exrFile{data: data, multipart: version&exrFlagMultipart != 0}

	for {
		p := &exrPart{attrs: map[string]string{}, chunkCount: -1}
		attrs := 0
		for {
			name := r.cstring()
			if r.err != nil {
				return nil, fmt.Errorf("read header: %w", r.err)
			}
			if name == "" {
				break
			}
			attrs++
			typ := r.cstring()
			size := r.i32()
			val := r.take(int(size))
			if r.err != nil {
				return nil, fmt.Errorf("read header: %w", r.err)
			}
			if err := p.attribute(name, typ, val); err != nil {
				return nil, err
			}
		}
		if attrs == 0 {
			if !f.multipart || len(f.parts) == 0 {
				return nil, fmt.Errorf("empty header")
			}
			break
		}
		if p.kind == "" {
			p.kind = exrKindFromFlags(version)
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		f.parts = append(f.parts, p)
		if !f.multipart {
			break
		}
	}

	for _, p := range f.parts {
		if p.chunkCount < 0 {
			p.chunkCount = p.computeChunkCount()
		}
		if p.chunkCount <= 0 || p.chunkCount*8 > len(data) {
			return nil, fmt.Errorf("part %q declares %d chunks", p.name, p.chunkCount)
		}
		p.offsets = make([]uint64, p.chunkCount)
		for i := range p.offsets {
			p.offsets[i] = r.u64()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("read offset table: %w", r.err)
	}
	return f, nil
}

func exrKindFromFlags(version uint32) string {
	tiled := version&exrFlagTiled != 0
	deep := version&exrFlagNonImage != 0
	switch {
	case tiled && deep:
		return exrDeepTiled
	case deep:
		return exrDeepScanline
	case tiled:
		return exrTiled
	}
	return exrScanline
}

func (f *exrFile) part(subimage int) (*exrPart, error) {
	if subimage < 0 || subimage >= len(f.parts) {
		return nil, fmt.Errorf("subimage %d out of range [0,%d)", subimage, len(f.parts))
	}
	return f.parts[subimage], nil
}

func (f *exrFile) NumSubimages() int { return len(f.parts) }

func (f *exrFile) NumMipLevels(subimage int) int {
	p, err := f.part(subimage)
	if err != nil {
		return 0
	}
	return p.levelCount()
}

func (f *exrFile) Spec(subimage, miplevel int) (Spec, error) {
	p, err := f.part(subimage)
	if err != nil {
		return Spec{}, err
	}
	if miplevel < 0 || miplevel >= p.levelCount() {
		return Spec{}, fmt.Errorf("mip level %d not available", miplevel)
	}
	names := make([]string, len(p.channels))
	for i, ch := range p.channels {
		names[i] = ch.name
	}
	attrs := maps.Clone(p.attrs)
	attrs["compression"] = p.compressionName()
	if p.name != "" {
		attrs["name"] = p.name
	}
	return Spec{
		Width:        p.levelSize(p.width(), miplevel),
		Height:       p.levelSize(p.height(), miplevel),
		ChannelNames: names,
		Deep:         p.deep(),
		ColorSpace:   p.colorSpace(),
		Format:       "openexr",
		Attributes:   attrs,
	}, nil
}

func (f *exrFile) Read(subimage, miplevel int) (*Buffer, error) {
	spec, err := f.Spec(subimage, miplevel)
	if err != nil {
		return nil, err
	}
	p := f.parts[subimage]
	if p.compression > exrZIP {
		return nil, fmt.Errorf("compression %s not supported", p.compressionName())
	}
	for _, ch := range p.channels {
		if ch.xSampling != 1 || ch.ySampling != 1 {
			return nil, fmt.Errorf("channel %s is subsampled", ch.name)
		}
	}

	switch p.kind {
	case exrScanline:
		return f.readScanlines(subimage, p, spec)
	case exrTiled:
		return f.readTiles(subimage, p, spec, miplevel)
	case exrDeepScanline:
		return f.readDeepScanlines(subimage, p, spec)
	}
	return nil, fmt.Errorf("%s parts are not supported", p.kind)
}

func (f *exrFile) Close() error { return nil }

// MemoryBytes reports the retained file size for cache accounting.
func (f *exrFile) MemoryBytes() int64 { return int64(len(f.data)) }

// chunk positions a reader at offset and consumes the part number of
// multi-part files.
func (f *exrFile) chunk(subimage int, offset uint64) (*exrReader, error) {
	if offset >= uint64(len(f.data)) {
		return nil, fmt.Errorf("chunk offset %d beyond end of file", offset)
	}
	r := &exrReader{data: f.data, pos: int(offset)}
	if f.multipart {
		if part := int(r.i32()); r.err == nil && part != subimage {
			return nil, fmt.Errorf("chunk at %d belongs to part %d", offset, part)
		}
	}
	return r, r.err
}

func (f *exrFile) readScanlines(subimage int, p *exrPart, spec Spec) (*Buffer, error) {
	buf := NewBuffer(spec)
	w, h := spec.Width, spec.Height
	lpb := exrLinesPerBlock(p.compression)
	for _, off := range p.offsets {
		r, err := f.chunk(subimage, off)
		if err != nil {
			return nil, err
		}
		y := int(r.i32()) - int(p.yMin)
		packed := r.take(int(r.i32()))
		if r.err != nil {
			return nil, fmt.Errorf("scanline chunk at %d: %w", off, r.err)
		}
		lines := min(lpb, h-y)
		if y < 0 || lines <= 0 {
			return nil, fmt.Errorf("scanline chunk at %d starts outside the data window", off)
		}
		raw, err := exrDecompress(p.compression, packed, lines*p.rowBytes(w))
		if err != nil {
			return nil, fmt.Errorf("scanline chunk at %d: %w", off, err)
		}
		exrDecodeRows(buf, p.channels, raw, 0, y, w, lines)
	}
	return buf, nil
}

func (f *exrFile) readTiles(subimage int, p *exrPart, spec Spec, level int) (*Buffer, error) {
	buf := NewBuffer(spec)
	lw, lh := spec.Width, spec.Height
	want := p.tilesAcross(p.width(), level, p.tileW) * p.tilesAcross(p.height(), level, p.tileH)
	got := 0
	for _, off := range p.offsets {
		r, err := f.chunk(subimage, off)
		if err != nil {
			return nil, err
		}
		tx, ty, lx, ly := int(r.i32()), int(r.i32()), int(r.i32()), int(r.i32())
		if r.err != nil {
			return nil, fmt.Errorf("tile chunk at %d: %w", off, r.err)
		}
		if lx != level || ly != level {
			continue
		}
		packed := r.take(int(r.i32()))
		if r.err != nil {
			return nil, fmt.Errorf("tile chunk at %d: %w", off, r.err)
		}
		x0, y0 := tx*p.tileW, ty*p.tileH
		tw, th := min(p.tileW, lw-x0), min(p.tileH, lh-y0)
		if tx < 0 || ty < 0 || tw <= 0 || th <= 0 {
			return nil, fmt.Errorf("tile (%d,%d) lies outside level %d", tx, ty, level)
		}
		raw, err := exrDecompress(p.compression, packed, th*p.rowBytes(tw))
		if err != nil {
			return nil, fmt.Errorf("tile (%d,%d): %w", tx, ty, err)
		}
		exrDecodeRows(buf, p.channels, raw, x0, y0, tw, th)
		got++
	}
	if got != want {
		return nil, fmt.Errorf("level %d holds %d of %d tiles", level, got, want)
	}
	return buf, nil
}

func (f *exrFile) readDeepScanlines(subimage int, p *exrPart, spec Spec) (*Buffer, error) {
	w, h := spec.Width, spec.Height
	n := len(p.channels)
	lpb := exrLinesPerBlock(p.compression)
	samples := make([][]float32, w*h)
	for _, off := range p.offsets {
		r, err := f.chunk(subimage, off)
		if err != nil {
			return nil, err
		}
		y := int(r.i32()) - int(p.yMin)
		packedCounts := r.u64()
		packedSamples := r.u64()
		unpackedSamples := r.u64()
		if r.err == nil && (packedCounts > uint64(len(f.data)) || packedSamples > uint64(len(f.data)) || unpackedSamples > math.MaxInt32) {
			return nil, fmt.Errorf("deep chunk at %d declares impossible sizes", off)
		}
		countData := r.take(int(packedCounts))
		sampleData := r.take(int(packedSamples))
		if r.err != nil {
			return nil, fmt.Errorf("deep chunk at %d: %w", off, r.err)
		}
		lines := min(lpb, h-y)
		if y < 0 || lines <= 0 {
			return nil, fmt.Errorf("deep chunk at %d starts outside the data window", off)
		}

		rawCounts, err := exrDecompress(p.compression, countData, lines*w*4)
		if err != nil {
			return nil, fmt.Errorf("deep sample counts at %d: %w", off, err)
		}
		counts := make([]int, lines*w)
		for l := 0; l < lines; l++ {
			prev := 0
			for x := 0; x < w; x++ {
				i := l*w + x
				total := int(int32(binary.LittleEndian.Uint32(rawCounts[i*4:])))
				if total < prev {
					return nil, fmt.Errorf("deep sample counts at %d decrease", off)
				}
				counts[i] = total - prev
				prev = total
			}
		}

		raw, err := exrDecompress(p.compression, sampleData, int(unpackedSamples))
		if err != nil {
			return nil, fmt.Errorf("deep samples at %d: %w", off, err)
		}
		pos := 0
		for l := 0; l < lines; l++ {
			row := (y + l) * w
			for x := 0; x < w; x++ {
				samples[row+x] = make([]float32, counts[l*w+x]*n)
			}
			for c, ch := range p.channels {
				size := ch.size()
				for x := 0; x < w; x++ {
					dst := samples[row+x]
					for s := 0; s < counts[l*w+x]; s++ {
						if pos+size > len(raw) {
							return nil, fmt.Errorf("deep samples at %d are truncated", off)
						}
						dst[s*n+c] = exrSample(raw[pos:], ch.pixelType)
						pos += size
					}
				}
			}
		}
	}
	for i := range samples {
		if samples[i] == nil {
			samples[i] = []float32{}
		}
	}
	sortDeepSamples(samples, spec.ChannelIndex("Z"), n)
	return NewDeepBuffer(spec, samples), nil
}

// exrDecodeRows scatters a decoded block, stored line by line and channel by
// channel within each line, into buf at (x0, y0).
func exrDecodeRows(buf *Buffer, channels []exrChannel, raw []byte, x0, y0, width, lines int) {
	n := len(channels)
	stride := buf.Spec.Width
	pos := 0
	for l := 0; l < lines; l++ {
		row := (y0 + l) * stride
		for c, ch := range channels {
			size := ch.size()
			for i := 0; i < width; i++ {
				buf.Pixels[(row+x0+i)*n+c] = exrSample(raw[pos:], ch.pixelType)
				pos += size
			}
		}
	}
}

// exrReader decodes little-endian values. The first failure sticks and every
// later read returns zero values.
type exrReader struct {
	data []byte
	pos  int
	err  error
}

func (r *exrReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.pos {
		r.err = fmt.Errorf("truncated at byte %d", r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *exrReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *exrReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *exrReader) i32() int32 { return int32(r.u32()) }

func (r *exrReader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *exrReader) cstring() string {
	if r.err != nil {
		return ""
	}
	end := bytes.IndexByte(r.data[r.pos:], 0)
	if end < 0 {
		r.err = fmt.Errorf("unterminated string at byte %d", r.pos)
		return ""
	}
	s := string(r.data[r.pos : r.pos+end])
	r.pos += end + 1
	return s
}
