// Package channels maps arbitrary source channel layouts onto RGB or RGBA.
package channels

import (
	"fmt"
	"slices"
	"strings"

	"thumbconv/internal/imageio"
)

// FillValue is written to colour slots when the source has no channels.
const FillValue float32 = 0.3

// Unmapped marks a slot that is filled with FillValue.
const Unmapped = -1

// redAliases are tried in order for the red slot.
var redAliases = []string{"R", "Y", "L", "RY"}

// Mapping holds, for each output slot, the source channel index feeding it.
type Mapping struct {
	R, G, B int
	// A is Unmapped when the source has no alpha; the output is then RGB.
	A int
}

// HasAlpha reports whether the mapped output carries an alpha channel.
func (m Mapping) HasAlpha() bool { return m.A != Unmapped }

// Channels returns 4 with alpha, else 3.
func (m Mapping) Channels() int {
	if m.HasAlpha() {
		return 4
	}
	return 3
}

// Names returns the output channel names.
func (m Mapping) Names() []string {
	if m.HasAlpha() {
		return []string{"R", "G", "B", "A"}
	}
	return []string{"R", "G", "B"}
}

func (m Mapping) indices() []int {
	if m.HasAlpha() {
		return []int{m.R, m.G, m.B, m.A}
	}
	return []int{m.R, m.G, m.B}
}

func (m Mapping) String() string {
	var b strings.Builder
	for i, idx := range m.indices() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s<-", m.Names()[i])
		if idx == Unmapped {
			fmt.Fprintf(&b, "%.1f", FillValue)
		} else {
			fmt.Fprintf(&b, "%d", idx)
		}
	}
	return b.String()
}

// Resolve chooses source channels for R, G, B and A. Colour slots with no
// match copy the first matched colour channel; when no colour channel
// matches they read channel 0, and with no channels at all they are filled.
func Resolve(names []string) Mapping {
	m := Mapping{R: Unmapped, G: Unmapped, B: Unmapped, A: slices.Index(names, "A")}
	for _, alias := range redAliases {
		if idx := slices.Index(names, alias); idx >= 0 {
			m.R = idx
			break
		}
	}
	m.G = slices.Index(names, "G")
	m.B = slices.Index(names, "B")

	fallback := Unmapped
	for _, idx := range []int{m.R, m.G, m.B} {
		if idx != Unmapped {
			fallback = idx
			break
		}
	}
	if fallback == Unmapped && len(names) > 0 {
		fallback = 0
	}
	for _, slot := range []*int{&m.R, &m.G, &m.B} {
		if *slot == Unmapped {
			*slot = fallback
		}
	}
	return m
}

// Apply builds a new buffer laid out as m.Names(). Deep samples are remapped
// the same way.
func Apply(buf *imageio.Buffer, m Mapping) (*imageio.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	srcN := buf.Spec.NChannels()
	idx := m.indices()
	for _, i := range idx {
		if i != Unmapped && (i < 0 || i >= srcN) {
			return nil, fmt.Errorf("channel index %d out of range for %d channels", i, srcN)
		}
	}

	spec := buf.Spec.Clone()
	spec.ChannelNames = m.Names()
	out := imageio.NewBuffer(spec)
	remap(out.Pixels, buf.Pixels, srcN, idx)

	if buf.Deep != nil {
		samples := make([][]float32, len(buf.Deep.Samples))
		for p, s := range buf.Deep.Samples {
			if srcN == 0 {
				continue
			}
			count := len(s) / srcN
			samples[p] = make([]float32, count*len(idx))
			remap(samples[p], s, srcN, idx)
		}
		out.Deep = &imageio.DeepData{Samples: samples}
	}
	return out, nil
}

// ResolveBuffer resolves buf's channel names and applies the mapping.
func ResolveBuffer(buf *imageio.Buffer) (*imageio.Buffer, Mapping, error) {
	m := Resolve(buf.Spec.ChannelNames)
	out, err := Apply(buf, m)
	return out, m, err
}

func remap(dst, src []float32, srcN int, idx []int) {
	dstN := len(idx)
	pixels := len(dst) / dstN
	for p := 0; p < pixels; p++ {
		d := dst[p*dstN : (p+1)*dstN]
		for c, i := range idx {
			if i == Unmapped {
				d[c] = FillValue
				continue
			}
			d[c] = src[p*srcN+i]
		}
	}
}
