package imageio_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"thumbconv/internal/imageio"
	"thumbconv/internal/testsupport"
)

func exrGradient(w, h int) *imageio.Buffer {
	buf := imageio.NewBuffer(imageio.Spec{Width: w, Height: h, ChannelNames: []string{"A", "B", "G", "R"}})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float32(x)/8 + float32(y)/64
			buf.Set(x, y, 0, 1)
			buf.Set(x, y, 1, 0.5)
			buf.Set(x, y, 2, 1-v)
			buf.Set(x, y, 3, v)
		}
	}
	return buf
}

func exrMipChain(w, h int) []*imageio.Buffer {
	var levels []*imageio.Buffer
	for l := 0; ; l++ {
		lw, lh := max(w>>l, 1), max(h>>l, 1)
		levels = append(levels, testsupport.Solid(lw, lh, []string{"B", "G", "R"}, float32(l), float32(l)/2, 0.25))
		if lw == 1 && lh == 1 {
			return levels
		}
	}
}

func openEXR(t *testing.T, path string) imageio.Input {
	t.Helper()
	in, err := imageio.EXRCodec().Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func TestEXRScanlineCompressions(t *testing.T) {
	tests := []struct {
		name        string
		compression uint8
		half        bool
	}{
		{"none", testsupport.EXRNone, false},
		{"rle", testsupport.EXRRLE, true},
		{"zips", testsupport.EXRZIPS, false},
		{"zip", testsupport.EXRZIP, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := exrGradient(13, 37)
			path := filepath.Join(t.TempDir(), "plate.exr")
			testsupport.WriteEXR(t, path, testsupport.EXRPart{Compression: tt.compression, Half: tt.half, Levels: []*imageio.Buffer{want}})

			in := openEXR(t, path)
			if in.NumSubimages() != 1 || in.NumMipLevels(0) != 1 {
				t.Fatalf("unexpected structure: %d subimages, %d levels", in.NumSubimages(), in.NumMipLevels(0))
			}
			spec, err := in.Spec(0, 0)
			if err != nil {
				t.Fatalf("spec: %v", err)
			}
			if spec.Width != 13 || spec.Height != 37 || !slices.Equal(spec.ChannelNames, want.Spec.ChannelNames) {
				t.Fatalf("unexpected spec %+v", spec)
			}
			if spec.ColorSpace != "linear" || spec.Format != "openexr" || spec.Attributes["compression"] != tt.name {
				t.Fatalf("unexpected metadata %+v", spec)
			}
			got, err := in.Read(0, 0)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !slices.Equal(got.Pixels, want.Pixels) {
				t.Fatal("decoded pixels differ from the encoded gradient")
			}
		})
	}
}

func TestEXRTiledMipChainFeedsLevelSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tex.exr")
	testsupport.WriteEXR(t, path, testsupport.EXRPart{Compression: testsupport.EXRZIP, TileSize: 16, Levels: exrMipChain(64, 32)})

	in := openEXR(t, path)
	if got := in.NumMipLevels(0); got != 7 {
		t.Fatalf("expected 7 mip levels, got %d", got)
	}
	spec, err := in.Spec(0, 2)
	if err != nil || spec.Width != 16 || spec.Height != 8 {
		t.Fatalf("unexpected level 2 spec %+v (%v)", spec, err)
	}
	level, err := in.Read(0, 3)
	if err != nil {
		t.Fatalf("read level 3: %v", err)
	}
	if level.Spec.Width != 8 || level.Spec.Height != 4 || level.At(7, 3, 0) != 3 || level.At(0, 0, 1) != 1.5 {
		t.Fatalf("unexpected level 3 contents %+v", level.Spec)
	}

	loader := imageio.NewLoader(imageio.NewRegistry(imageio.EXRCodec()), imageio.NewCache(64), nil)
	buf, src, err := loader.Load(context.Background(), path, 8)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if src.Codec != "openexr" || src.MipLevels != 7 || src.MipLevel != 2 {
		t.Fatalf("unexpected source %+v", src)
	}
	if buf.Spec.Width != 16 || buf.At(15, 7, 0) != 2 {
		t.Fatalf("expected level 2 pixels, got %dx%d value %v", buf.Spec.Width, buf.Spec.Height, buf.At(15, 7, 0))
	}
}

func TestEXRTiledEdgeTilesAreClipped(t *testing.T) {
	want := exrGradient(50, 20)
	path := filepath.Join(t.TempDir(), "edge.exr")
	testsupport.WriteEXR(t, path, testsupport.EXRPart{Compression: testsupport.EXRRLE, TileSize: 16, Levels: []*imageio.Buffer{want}})

	got, err := openEXR(t, path).Read(0, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !slices.Equal(got.Pixels, want.Pixels) {
		t.Fatal("tiled pixels differ from the encoded gradient")
	}
}

func TestEXRDeepScanlineSortsSamplesByDepth(t *testing.T) {
	spec := imageio.Spec{Width: 3, Height: 2, ChannelNames: []string{"A", "R", "Z"}}
	samples := [][]float32{
		{0.5, 0.2, 9, 1, 0.8, 2},
		{},
		{1, 0.1, 4},
		{1, 0.1, 4},
		{1, 0.1, 4},
		{1, 0.1, 4},
	}
	for _, compression := range []uint8{testsupport.EXRNone, testsupport.EXRZIPS} {
		path := filepath.Join(t.TempDir(), "deep.exr")
		testsupport.WriteEXR(t, path, testsupport.EXRPart{Compression: compression, Levels: []*imageio.Buffer{imageio.NewDeepBuffer(spec, samples)}})

		in := openEXR(t, path)
		s, err := in.Spec(0, 0)
		if err != nil || !s.Deep {
			t.Fatalf("expected deep spec, got %+v (%v)", s, err)
		}
		buf, err := in.Read(0, 0)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if buf.Deep == nil || len(buf.Deep.Samples) != 6 {
			t.Fatalf("expected 6 deep pixels, got %+v", buf.Deep)
		}
		if got := buf.Deep.Samples[0]; !slices.Equal(got, []float32{1, 0.8, 2, 0.5, 0.2, 9}) {
			t.Fatalf("expected samples sorted by Z, got %v", got)
		}
		if len(buf.Deep.Samples[1]) != 0 {
			t.Fatalf("expected empty pixel, got %v", buf.Deep.Samples[1])
		}
		if buf.At(0, 0, 1) != 0.8 || buf.At(1, 0, 0) != 0 {
			t.Fatalf("unexpected front samples %v", buf.Pixels[:6])
		}
	}
}

func TestEXRMultipartPartsAreSubimages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.exr")
	testsupport.WriteEXR(t, path,
		testsupport.EXRPart{Name: "left", Levels: []*imageio.Buffer{testsupport.Solid(8, 8, []string{"Y"}, 0)}},
		testsupport.EXRPart{Name: "mid", Half: true, Compression: testsupport.EXRZIP, Levels: []*imageio.Buffer{testsupport.Solid(16, 4, []string{"Y"}, 1)}},
		testsupport.EXRPart{Name: "right", TileSize: 4, Levels: []*imageio.Buffer{testsupport.Solid(4, 4, []string{"Y"}, 2)}},
	)

	in := openEXR(t, path)
	if in.NumSubimages() != 3 {
		t.Fatalf("expected 3 subimages, got %d", in.NumSubimages())
	}
	spec, err := in.Spec(1, 0)
	if err != nil || spec.Attributes["name"] != "mid" || spec.Width != 16 {
		t.Fatalf("unexpected middle part %+v (%v)", spec, err)
	}
	right, err := in.Read(2, 0)
	if err != nil || right.At(3, 3, 0) != 2 {
		t.Fatalf("unexpected tiled part: %v", err)
	}

	loader := imageio.NewLoader(imageio.NewRegistry(imageio.EXRCodec()), imageio.NewCache(64), nil)
	buf, src, err := loader.Load(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if src.Subimages != 3 || src.Subimage != 1 || buf.At(15, 3, 0) != 1 {
		t.Fatalf("expected the middle part, got %+v", src)
	}
}

func TestEXRColorSpaceAttribute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aces.exr")
	testsupport.WriteEXR(t, path, testsupport.EXRPart{
		Levels:     []*imageio.Buffer{testsupport.Solid(2, 2, []string{"B", "G", "R"}, 0.1, 0.2, 0.3)},
		Attributes: map[string]string{"oiio:ColorSpace": "ACEScg", "owner": "comp"},
	})
	spec, err := openEXR(t, path).Spec(0, 0)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if spec.ColorSpace != "ACEScg" || spec.Attributes["owner"] != "comp" {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestEXRRejectsDamagedFiles(t *testing.T) {
	dir := t.TempDir()
	data, err := testsupport.EncodeEXR(testsupport.EXRPart{Levels: []*imageio.Buffer{exrGradient(13, 37)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	write := func(name string, b []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, b, 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	if _, err := imageio.EXRCodec().Open(write("garbage.exr", bytes.Repeat([]byte{0x42}, 64))); err == nil {
		t.Fatal("expected error for a file without the OpenEXR magic number")
	}
	if _, err := imageio.EXRCodec().Open(write("header.exr", data[:40])); err == nil {
		t.Fatal("expected error for a truncated header")
	}

	in, err := imageio.EXRCodec().Open(write("short.exr", data[:len(data)-20]))
	if err != nil {
		t.Fatalf("open with intact header: %v", err)
	}
	if _, err := in.Read(0, 0); err == nil {
		t.Fatal("expected error for truncated pixel data")
	}

	piz := bytes.Clone(data)
	marker := []byte("compression\x00compression\x00")
	at := bytes.Index(piz, marker)
	if at < 0 {
		t.Fatal("compression attribute not found")
	}
	piz[at+len(marker)+4] = 4
	in, err = imageio.EXRCodec().Open(write("piz.exr", piz))
	if err != nil {
		t.Fatalf("open piz: %v", err)
	}
	if _, err := in.Read(0, 0); err == nil || !strings.Contains(err.Error(), "piz") {
		t.Fatalf("expected unsupported compression error, got %v", err)
	}
}
