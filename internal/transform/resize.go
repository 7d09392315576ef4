package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"thumbconv/internal/imageio"
	"thumbconv/internal/services"
)

// TargetSize returns the output dimensions for a source of w x h. The longer
// edge becomes size and the aspect ratio is kept; each dimension is rounded
// to nearest, bumped to even and kept at least 2. A size <= 0 keeps the
// native dimensions, still evened.
func TargetSize(w, h, size int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if size <= 0 {
		return even(w), even(h)
	}
	if w >= h {
		return even(size), even(int(math.Round(float64(h) * float64(size) / float64(w))))
	}
	return even(int(math.Round(float64(w) * float64(size) / float64(h)))), even(size)
}

func even(v int) int {
	if v%2 != 0 {
		v++
	}
	return max(v, 2)
}

// Fit converts buf to 8 bits per channel at width x height, resampling with a
// Gaussian filter when the size differs. buf must hold 3 or 4 channels.
func Fit(buf *imageio.Buffer, width, height int) (*image.NRGBA, bool, error) {
	if width <= 0 || height <= 0 {
		return nil, false, services.Wrap(services.ErrTransform, "transform", "resize",
			fmt.Sprintf("invalid target %dx%d", width, height), nil)
	}
	src, err := ToNRGBA64(buf)
	if err != nil {
		return nil, false, services.Wrap(services.ErrTransform, "transform", "resize", "", err)
	}
	if width == buf.Spec.Width && height == buf.Spec.Height {
		return imaging.Clone(src), false, nil
	}
	out := imaging.Resize(src, width, height, imaging.Gaussian)
	if out == nil || out.Bounds().Dx() != width || out.Bounds().Dy() != height {
		return nil, false, services.Wrap(services.ErrTransform, "transform", "resize",
			fmt.Sprintf("resampler produced no %dx%d image", width, height), nil)
	}
	return out, true, nil
}

// ToNRGBA64 quantizes an RGB or RGBA float buffer to 16 bits per channel.
// RGB buffers become fully opaque.
func ToNRGBA64(buf *imageio.Buffer) (*image.NRGBA64, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	n := buf.Spec.NChannels()
	if n != 3 && n != 4 {
		return nil, fmt.Errorf("expected 3 or 4 channels, have %d", n)
	}
	w, h := buf.Spec.Width, buf.Spec.Height
	img := image.NewNRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*8]
		for x := 0; x < w; x++ {
			src := buf.Pixels[(y*w+x)*n:]
			px := row[x*8 : x*8+8]
			for c := 0; c < 4; c++ {
				v := uint16(0xffff)
				if c < n {
					v = quantize16(src[c])
				}
				px[2*c] = uint8(v >> 8)
				px[2*c+1] = uint8(v)
			}
		}
	}
	return img, nil
}

func quantize16(v float32) uint16 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(math.Round(float64(v) * 0xffff))
}
