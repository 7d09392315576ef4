package transform

import (
	"context"
	"fmt"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/sync/errgroup"

	"thumbconv/internal/imageio"
	"thumbconv/internal/services"
)

// TargetColorSpace is the only output colour space.
const TargetColorSpace = "sRGB"

type transferFunc func(r, g, b float64) (float64, float64, float64)

var colorSpaces = map[string]transferFunc{
	"srgb":         nil,
	"linear":       fromLinear,
	"scene_linear": fromLinear,
	"lin_srgb":     fromLinear,
	"lin_rec709":   fromLinear,
	"rec709":       fromRec709,
	"gamma2.2":     fromGamma22,
	"acescg":       fromACEScg,
}

// SupportedColorSpace reports whether name can be converted to sRGB.
func SupportedColorSpace(name string) bool {
	_, ok := colorSpaces[canonicalSpace(name)]
	return ok
}

// IsTarget reports whether name already denotes sRGB.
func IsTarget(name string) bool {
	return canonicalSpace(name) == "srgb"
}

func canonicalSpace(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ConvertColor converts the first three channels of buf from colour space
// `from` to sRGB in place. Other channels are left alone. Rows are split
// across at most threads goroutines; threads <= 0 uses one per band.
func ConvertColor(ctx context.Context, buf *imageio.Buffer, from string, threads int) error {
	fn, ok := colorSpaces[canonicalSpace(from)]
	if !ok {
		return services.Wrap(services.ErrColorConvert, "transform", "color convert",
			fmt.Sprintf("unsupported source colour space %q", from), nil)
	}
	if fn == nil {
		return nil
	}
	n := buf.Spec.NChannels()
	if n < 3 {
		return services.Wrap(services.ErrColorConvert, "transform", "color convert",
			fmt.Sprintf("need 3 colour channels, have %d", n), nil)
	}

	width, height := buf.Spec.Width, buf.Spec.Height
	bands := bandCount(height, threads)
	rowsPer := (height + bands - 1) / bands

	g, gctx := errgroup.WithContext(ctx)
	if threads > 0 {
		g.SetLimit(threads)
	}
	for start := 0; start < height; start += rowsPer {
		end := min(start+rowsPer, height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := buf.Pixels[start*width*n : end*width*n]
			for i := 0; i+n <= len(rows); i += n {
				r, gr, b := fn(float64(rows[i]), float64(rows[i+1]), float64(rows[i+2]))
				rows[i], rows[i+1], rows[i+2] = float32(r), float32(gr), float32(b)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return services.Wrap(services.ErrColorConvert, "transform", "color convert", "", err)
	}
	buf.Spec.ColorSpace = TargetColorSpace
	return nil
}

func bandCount(height, threads int) int {
	bands := threads
	if bands <= 0 {
		bands = 4
	}
	return max(1, min(bands, height))
}

// encode applies the sRGB transfer function to linear sRGB primaries.
func encode(r, g, b float64) (float64, float64, float64) {
	c := colorful.LinearRgb(r, g, b)
	return c.R, c.G, c.B
}

func fromLinear(r, g, b float64) (float64, float64, float64) {
	return encode(r, g, b)
}

func fromRec709(r, g, b float64) (float64, float64, float64) {
	return encode(rec709ToLinear(r), rec709ToLinear(g), rec709ToLinear(b))
}

func fromGamma22(r, g, b float64) (float64, float64, float64) {
	return encode(gammaToLinear(r, 2.2), gammaToLinear(g, 2.2), gammaToLinear(b, 2.2))
}

func fromACEScg(r, g, b float64) (float64, float64, float64) {
	x := ap1ToXYZ[0][0]*r + ap1ToXYZ[0][1]*g + ap1ToXYZ[0][2]*b
	y := ap1ToXYZ[1][0]*r + ap1ToXYZ[1][1]*g + ap1ToXYZ[1][2]*b
	z := ap1ToXYZ[2][0]*r + ap1ToXYZ[2][1]*g + ap1ToXYZ[2][2]*b
	return encode(colorful.XyzToLinearRgb(x, y, z))
}

func rec709ToLinear(v float64) float64 {
	if v < 0.081 {
		return v / 4.5
	}
	return math.Pow((v+0.099)/1.099, 1/0.45)
}

func gammaToLinear(v, gamma float64) float64 {
	if v < 0 {
		return -math.Pow(-v, gamma)
	}
	return math.Pow(v, gamma)
}

// ap1ToXYZ maps ACEScg (AP1, D60) to CIE XYZ adapted to D65 with Bradford.
var ap1ToXYZ = mul3(
	[3][3]float64{
		{0.9872240, -0.0061132, 0.0159533},
		{-0.0075984, 1.0018600, 0.0053300},
		{0.0030726, -0.0050960, 1.0816800},
	},
	[3][3]float64{
		{0.6624541811, 0.1340042065, 0.1561876870},
		{0.2722287168, 0.6740817658, 0.0536895174},
		{-0.0055746495, 0.0040607335, 1.0103391003},
	},
)

func mul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}
