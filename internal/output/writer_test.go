package output_test

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"thumbconv/internal/output"
	"thumbconv/internal/services"
)

func opaque(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 20, 30, 255
	}
	return img
}

func TestWritePNGIsEightBitRGB(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "thumb.png")
	if err := output.NewWriter(0, nil).Write(opaque(6, 4), dest); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != 6 || cfg.Height != 4 {
		t.Fatalf("unexpected size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.ColorModel != color.RGBAModel {
		t.Fatalf("expected 8-bit RGB colour model, got %T", cfg.ColorModel)
	}
	assertNoTempFiles(t, filepath.Dir(dest))
}

func TestWriteKeepsAlpha(t *testing.T) {
	img := opaque(2, 2)
	img.Pix[3] = 0
	dest := filepath.Join(t.TempDir(), "thumb.png")
	if err := output.NewWriter(0, nil).Write(img, dest); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, _ := os.Open(dest)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ColorModel != color.NRGBAModel {
		t.Fatalf("expected NRGBA colour model, got %v", cfg.ColorModel)
	}
}

func TestWriteJPEG(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "thumb.JPG")
	if err := output.NewWriter(75, nil).Write(opaque(16, 8), dest); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, _ := os.Open(dest)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("expected a jpeg: %v", err)
	}
	if cfg.Width != 16 {
		t.Fatalf("unexpected width %d", cfg.Width)
	}
}

func TestWriteOverwritesExistingOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "thumb.png")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := output.NewWriter(0, nil).Write(opaque(2, 2), dest); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) == "old" {
		t.Fatal("expected output replaced")
	}
}

func TestWriteFailures(t *testing.T) {
	dir := t.TempDir()
	w := output.NewWriter(0, nil)

	err := w.Write(opaque(2, 2), filepath.Join(dir, "thumb"))
	if !errors.Is(err, services.ErrWrite) {
		t.Fatalf("expected write error for missing extension, got %v", err)
	}
	err = w.Write(opaque(2, 2), filepath.Join(dir, "missing", "thumb.png"))
	if !errors.Is(err, services.ErrWrite) {
		t.Fatalf("expected write error for missing directory, got %v", err)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteUnknownExtensionKeepsNameAndWritesPNG(t *testing.T) {
	dir := t.TempDir()
	w := output.NewWriter(0, nil)

	for _, name := range []string{"render.0.mov", "thumb.webp", "thumb.exr"} {
		dest := filepath.Join(dir, name)
		if err := w.Write(opaque(6, 4), dest); err != nil {
			t.Fatalf("%s: write: %v", name, err)
		}
		f, err := os.Open(dest)
		if err != nil {
			t.Fatalf("%s: open: %v", name, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("%s: expected PNG data: %v", name, err)
		}
		if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
			t.Fatalf("%s: unexpected bounds %v", name, b)
		}
	}
	assertNoTempFiles(t, dir)
}

func TestEncodingFor(t *testing.T) {
	cases := []struct {
		name     string
		format   imaging.Format
		fallback bool
		wantErr  bool
	}{
		{"a.png", imaging.PNG, false, false},
		{"a.JPEG", imaging.JPEG, false, false},
		{"a.tif", imaging.TIFF, false, false},
		{"a.bmp", imaging.BMP, false, false},
		{"a.gif", imaging.GIF, false, false},
		{"a.mov", output.FallbackFormat, true, false},
		{"a.exr", output.FallbackFormat, true, false},
		{"a", 0, false, true},
	}
	for _, tc := range cases {
		format, fallback, err := output.EncodingFor(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil || format != tc.format || fallback != tc.fallback {
			t.Fatalf("%s: got %v fallback=%v err=%v", tc.name, format, fallback, err)
		}
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
