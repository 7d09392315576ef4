package transform

import (
	"thumbconv/internal/imageio"
	"thumbconv/internal/services"
)

// Flatten composites each deep pixel's samples front to back with the "over"
// operator and returns a flat buffer with unassociated colour. Samples are
// treated as premultiplied. Without an A channel it returns buf unchanged
// with services.ErrFlatten; buf.Pixels then still holds the front samples.
func Flatten(buf *imageio.Buffer) (*imageio.Buffer, error) {
	if buf.Deep == nil {
		return buf, nil
	}
	alpha := buf.Spec.ChannelIndex("A")
	if alpha < 0 {
		return buf, services.Wrap(services.ErrFlatten, "transform", "flatten", "deep image has no alpha channel", nil)
	}

	n := buf.Spec.NChannels()
	spec := buf.Spec.Clone()
	spec.Deep = false
	out := imageio.NewBuffer(spec)
	acc := make([]float32, n)
	for p, samples := range buf.Deep.Samples {
		clear(acc)
		for s := 0; s+n <= len(samples); s += n {
			remaining := 1 - acc[alpha]
			if remaining <= 0 {
				break
			}
			for c := 0; c < n; c++ {
				acc[c] += remaining * samples[s+c]
			}
		}
		dst := out.Pixels[p*n : (p+1)*n]
		a := min(acc[alpha], 1)
		for c := 0; c < n; c++ {
			switch {
			case c == alpha:
				dst[c] = a
			case a > 0:
				dst[c] = acc[c] / a
			default:
				dst[c] = 0
			}
		}
	}
	return out, nil
}
