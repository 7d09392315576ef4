package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var stdFormats = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".gif":  "gif",
	".tif":  "tiff",
	".tiff": "tiff",
	".bmp":  "bmp",
	".webp": "webp",
}

type stdCodec struct{}

// StdCodec returns the built-in codec for the formats decodable through the
// image package family. GIF frames are exposed as subimages.
func StdCodec() Codec {
	return stdCodec{}
}

func (stdCodec) Name() string { return "std" }

func (stdCodec) Extensions() []string {
	exts := make([]string, 0, len(stdFormats))
	for ext := range stdFormats {
		exts = append(exts, ext)
	}
	return exts
}

func (stdCodec) Capabilities() Capabilities {
	return Capabilities{Subimages: true}
}

func (stdCodec) Open(path string) (Input, error) {
	format, ok := stdFormats[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if format == "gif" {
		anim, err := gif.DecodeAll(f)
		if err != nil {
			return nil, fmt.Errorf("decode gif: %w", err)
		}
		return &stdInput{format: format, frames: compositeGIF(anim)}, nil
	}

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return &stdInput{format: format, frames: []image.Image{img}}, nil
}

type stdInput struct {
	format string
	frames []image.Image
}

func (in *stdInput) NumSubimages() int { return len(in.frames) }

func (in *stdInput) NumMipLevels(subimage int) int {
	if subimage < 0 || subimage >= len(in.frames) {
		return 0
	}
	return 1
}

func (in *stdInput) Spec(subimage, miplevel int) (Spec, error) {
	img, err := in.frame(subimage, miplevel)
	if err != nil {
		return Spec{}, err
	}
	b := img.Bounds()
	spec := Spec{
		Width:        b.Dx(),
		Height:       b.Dy(),
		ChannelNames: channelNamesFor(img),
		ColorSpace:   DefaultColorSpace,
		Format:       in.format,
	}
	if len(in.frames) > 1 {
		spec.Attributes = map[string]string{"frame": strconv.Itoa(subimage)}
	}
	return spec, nil
}

func (in *stdInput) Read(subimage, miplevel int) (*Buffer, error) {
	spec, err := in.Spec(subimage, miplevel)
	if err != nil {
		return nil, err
	}
	buf := NewBuffer(spec)
	fillBuffer(buf, in.frames[subimage])
	return buf, nil
}

func (in *stdInput) Close() error { return nil }

// MemoryBytes reports the decoded pixel footprint used for cache accounting.
func (in *stdInput) MemoryBytes() int64 {
	var total int64
	for _, img := range in.frames {
		total += pixelBytes(img)
	}
	return total
}

func (in *stdInput) frame(subimage, miplevel int) (image.Image, error) {
	if subimage < 0 || subimage >= len(in.frames) {
		return nil, fmt.Errorf("subimage %d out of range [0,%d)", subimage, len(in.frames))
	}
	if miplevel != 0 {
		return nil, fmt.Errorf("mip level %d not available", miplevel)
	}
	return in.frames[subimage], nil
}

func compositeGIF(anim *gif.GIF) []image.Image {
	bounds := image.Rect(0, 0, anim.Config.Width, anim.Config.Height)
	if bounds.Empty() && len(anim.Image) > 0 {
		bounds = anim.Image[0].Bounds()
	}
	canvas := image.NewNRGBA(bounds)
	frames := make([]image.Image, 0, len(anim.Image))
	for i, frame := range anim.Image {
		var previous *image.NRGBA
		disposal := byte(0)
		if i < len(anim.Disposal) {
			disposal = anim.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = imaging.Clone(canvas)
		}
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		frames = append(frames, imaging.Clone(canvas))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return frames
}

func channelNamesFor(img image.Image) []string {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return []string{"Y"}
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return []string{"R", "G", "B"}
	}
	return []string{"R", "G", "B", "A"}
}

func pixelBytes(img image.Image) int64 {
	switch v := img.(type) {
	case *image.Gray:
		return int64(len(v.Pix))
	case *image.Gray16:
		return int64(len(v.Pix))
	case *image.RGBA:
		return int64(len(v.Pix))
	case *image.NRGBA:
		return int64(len(v.Pix))
	case *image.RGBA64:
		return int64(len(v.Pix))
	case *image.NRGBA64:
		return int64(len(v.Pix))
	case *image.YCbCr:
		return int64(len(v.Y) + len(v.Cb) + len(v.Cr))
	case *image.Paletted:
		return int64(len(v.Pix))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

const (
	max8  = 255
	max16 = 65535
)

// fillBuffer converts img into buf's float channels. Colour values are
// stored unassociated.
func fillBuffer(buf *Buffer, img image.Image) {
	b := img.Bounds()
	n := buf.Spec.NChannels()
	px := buf.Pixels
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+b.Dx()]
			for x, v := range row {
				px[y*b.Dx()+x] = float32(v) / max8
			}
		}
		return
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			off := y * src.Stride
			for x := 0; x < b.Dx(); x++ {
				v := uint16(src.Pix[off+2*x])<<8 | uint16(src.Pix[off+2*x+1])
				px[y*b.Dx()+x] = float32(v) / max16
			}
		}
		return
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			off := y * src.Stride
			for x := 0; x < b.Dx(); x++ {
				s := src.Pix[off+4*x : off+4*x+4]
				d := px[(y*b.Dx()+x)*n:]
				for c := 0; c < n; c++ {
					d[c] = float32(s[c]) / max8
				}
			}
		}
		return
	case *image.NRGBA64:
		for y := 0; y < b.Dy(); y++ {
			off := y * src.Stride
			for x := 0; x < b.Dx(); x++ {
				s := src.Pix[off+8*x : off+8*x+8]
				d := px[(y*b.Dx()+x)*n:]
				for c := 0; c < n; c++ {
					d[c] = float32(uint16(s[2*c])<<8|uint16(s[2*c+1])) / max16
				}
			}
		}
		return
	case *image.RGBA64:
		if n == 3 {
			for y := 0; y < b.Dy(); y++ {
				off := y * src.Stride
				for x := 0; x < b.Dx(); x++ {
					s := src.Pix[off+8*x : off+8*x+6]
					d := px[(y*b.Dx()+x)*3:]
					for c := 0; c < 3; c++ {
						d[c] = float32(uint16(s[2*c])<<8|uint16(s[2*c+1])) / max16
					}
				}
			}
			return
		}
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			d := px[(y*b.Dx()+x)*n:]
			switch n {
			case 1:
				d[0] = float32(c.R) / max16
			default:
				d[0] = float32(c.R) / max16
				d[1] = float32(c.G) / max16
				d[2] = float32(c.B) / max16
				if n > 3 {
					d[3] = float32(c.A) / max16
				}
			}
		}
	}
}
