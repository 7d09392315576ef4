package imageio

import (
	"fmt"
	"maps"
	"slices"
)

// DefaultColorSpace is assumed when a source does not declare one.
const DefaultColorSpace = "sRGB"

// Spec describes one subimage/mip level of a source.
type Spec struct {
	Width  int
	Height int
	// ChannelNames is ordered as stored; names may repeat or be empty.
	ChannelNames []string
	Deep         bool
	ColorSpace   string
	Format       string
	Attributes   map[string]string
}

// NChannels returns the number of channels per pixel.
func (s Spec) NChannels() int {
	return len(s.ChannelNames)
}

// ChannelIndex returns the first channel named name, or -1.
func (s Spec) ChannelIndex(name string) int {
	return slices.Index(s.ChannelNames, name)
}

// LongestEdge returns max(width, height).
func (s Spec) LongestEdge() int {
	return max(s.Width, s.Height)
}

// DeclaredColorSpace returns the colour space, defaulting to sRGB.
func (s Spec) DeclaredColorSpace() string {
	if s.ColorSpace == "" {
		return DefaultColorSpace
	}
	return s.ColorSpace
}

// Clone returns a deep copy.
func (s Spec) Clone() Spec {
	out := s
	out.ChannelNames = slices.Clone(s.ChannelNames)
	out.Attributes = maps.Clone(s.Attributes)
	return out
}

// DeepData holds per-pixel sample lists of a deep image. Samples[y*w+x]
// contains that pixel's samples ordered front to back, NChannels values each.
type DeepData struct {
	Samples [][]float32
}

// Buffer is a decoded image: interleaved float32 channels, row-major. For deep
// images Pixels holds the front-most sample of each pixel and Deep holds all
// samples.
type Buffer struct {
	Spec   Spec
	Pixels []float32
	Deep   *DeepData
}

// NewBuffer allocates a zeroed flat buffer for spec.
func NewBuffer(spec Spec) *Buffer {
	return &Buffer{
		Spec:   spec,
		Pixels: make([]float32, spec.Width*spec.Height*spec.NChannels()),
	}
}

// NewDeepBuffer builds a deep buffer from per-pixel samples and derives the
// front-sample flat view.
func NewDeepBuffer(spec Spec, samples [][]float32) *Buffer {
	spec.Deep = true
	buf := NewBuffer(spec)
	buf.Deep = &DeepData{Samples: samples}
	buf.RefreshFrontSamples()
	return buf
}

// RefreshFrontSamples rewrites Pixels from the first sample of every deep
// pixel; pixels without samples become zero.
func (b *Buffer) RefreshFrontSamples() {
	if b.Deep == nil {
		return
	}
	n := b.Spec.NChannels()
	for i, samples := range b.Deep.Samples {
		dst := b.Pixels[i*n : (i+1)*n]
		if len(samples) >= n {
			copy(dst, samples[:n])
		} else {
			clear(dst)
		}
	}
}

// At returns channel c of pixel (x, y).
func (b *Buffer) At(x, y, c int) float32 {
	return b.Pixels[(y*b.Spec.Width+x)*b.Spec.NChannels()+c]
}

// Set stores channel c of pixel (x, y).
func (b *Buffer) Set(x, y, c int, v float32) {
	b.Pixels[(y*b.Spec.Width+x)*b.Spec.NChannels()+c] = v
}

// Validate checks that pixel storage matches the image dimensions and channel count.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	if b.Spec.Width <= 0 || b.Spec.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", b.Spec.Width, b.Spec.Height)
	}
	n := b.Spec.NChannels()
	if want := b.Spec.Width * b.Spec.Height * n; len(b.Pixels) != want {
		return fmt.Errorf("pixel storage holds %d values, want %d", len(b.Pixels), want)
	}
	if b.Deep != nil {
		if len(b.Deep.Samples) != b.Spec.Width*b.Spec.Height {
			return fmt.Errorf("deep data covers %d pixels, want %d", len(b.Deep.Samples), b.Spec.Width*b.Spec.Height)
		}
		for i, samples := range b.Deep.Samples {
			if n == 0 || len(samples)%n != 0 {
				return fmt.Errorf("deep pixel %d holds %d values for %d channels", i, len(samples), n)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Spec: b.Spec.Clone(), Pixels: slices.Clone(b.Pixels)}
	if b.Deep != nil {
		samples := make([][]float32, len(b.Deep.Samples))
		for i, s := range b.Deep.Samples {
			samples[i] = slices.Clone(s)
		}
		out.Deep = &DeepData{Samples: samples}
	}
	return out
}
