package imageio_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"thumbconv/internal/imageio"
	"thumbconv/internal/logging"
	"thumbconv/internal/services"
	"thumbconv/internal/testsupport"
)

func mipChain(base int, names []string) []*imageio.Buffer {
	var levels []*imageio.Buffer
	for size := base; size >= 1; size /= 2 {
		levels = append(levels, testsupport.Solid(size, size/2+1, names, float32(size)))
	}
	return levels
}

func TestSelectMipLevel(t *testing.T) {
	sizes := []image.Point{{1024, 512}, {512, 256}, {256, 128}, {128, 64}}
	cases := []struct {
		target int
		want   int
	}{
		{target: 100, want: 2},
		{target: 128, want: 2},
		{target: 129, want: 1},
		{target: 512, want: 0},
		{target: 4096, want: 0},
	}
	for _, tc := range cases {
		if got := imageio.SelectMipLevel(sizes, tc.target); got != tc.want {
			t.Fatalf("target %d: got level %d want %d", tc.target, got, tc.want)
		}
	}
}

func TestSelectSubimage(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 0, 2: 1, 3: 1, 4: 2, 7: 3} {
		if got := imageio.SelectSubimage(n); got != want {
			t.Fatalf("n=%d: got %d want %d", n, got, want)
		}
	}
}

func TestLoaderPicksMiddleSubimageAndSmallestSufficientMip(t *testing.T) {
	fake := testsupport.NewFakeCodec()
	names := []string{"R", "G", "B"}
	src := testsupport.FakeSource{Levels: [][]*imageio.Buffer{
		{testsupport.Solid(64, 64, names, 0)},
		mipChain(1024, names),
		{testsupport.Solid(64, 64, names, 2)},
	}}
	path := fake.Add(t, t.TempDir(), "tex.exr", src)

	loader := imageio.NewLoader(fake.Registry(), imageio.NewCache(64), nil)
	buf, info, err := loader.Load(context.Background(), path, 200)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info.Subimages != 3 || info.Subimage != 1 {
		t.Fatalf("expected middle subimage, got %+v", info)
	}
	// Levels are 1024x513, 512x257, 256x129, ...; 256x129 is too short for
	// 200, so level 1 is the smallest that covers the target.
	if info.MipLevel != 1 || buf.Spec.Width != 512 {
		t.Fatalf("unexpected mip choice %d (%dx%d)", info.MipLevel, buf.Spec.Width, buf.Spec.Height)
	}
	if info.NativeWidth != 1024 || info.Codec != "fake" {
		t.Fatalf("unexpected source info %+v", info)
	}
}

func TestLoaderFallsBackToLevelZero(t *testing.T) {
	fake := testsupport.NewFakeCodec()
	path := fake.Add(t, t.TempDir(), "small.exr", testsupport.FakeSource{Levels: [][]*imageio.Buffer{mipChain(64, []string{"Y"})}})

	loader := imageio.NewLoader(fake.Registry(), imageio.NewCache(64), nil)
	buf, info, err := loader.Load(context.Background(), path, 512)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info.MipLevel != 0 || buf.Spec.Width != 64 {
		t.Fatalf("expected level 0, got %d", info.MipLevel)
	}
}

func TestLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	fake := testsupport.NewFakeCodec()
	loader := imageio.NewLoader(fake.Registry(), imageio.NewCache(64), nil)
	ctx := context.Background()

	if _, _, err := loader.Load(ctx, filepath.Join(dir, "missing.png"), 64); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	txt := filepath.Join(dir, "notes.txt")
	testsupport.WriteFile(t, txt, 10)
	if _, _, err := loader.Load(ctx, txt, 64); !errors.Is(err, imageio.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}

	if _, _, err := loader.Load(ctx, dir, 64); err == nil {
		t.Fatal("expected directory to be rejected")
	}

	broken := fake.Add(t, dir, "broken.exr", testsupport.FakeSource{})
	fake.Fail("broken.exr", errors.New("truncated header"))
	if _, _, err := loader.Load(ctx, broken, 64); err == nil {
		t.Fatal("expected codec error")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := loader.Load(cancelled, txt, 64); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestLoaderReadsRealPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grad.png")
	testsupport.WritePNG(t, path, testsupport.Gradient16(32, 16))
	loader := imageio.NewLoader(nil, imageio.NewCache(64), nil)

	buf, info, err := loader.Load(context.Background(), path, 8)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info.Format != "png" || info.Codec != "std" || buf.Spec.Width != 32 {
		t.Fatalf("unexpected result %+v", info)
	}
	if info.Size <= 0 {
		t.Fatal("expected source size")
	}
	loader.Invalidate(path)
}

func TestLoaderZeroSizeUsesNativeLevel(t *testing.T) {
	fake := testsupport.NewFakeCodec()
	path := fake.Add(t, t.TempDir(), "square.exr", testsupport.FakeSource{Levels: [][]*imageio.Buffer{{
		testsupport.Solid(256, 256, []string{"Y"}, 1),
		testsupport.Solid(128, 128, []string{"Y"}, 2),
	}}})

	loader := imageio.NewLoader(fake.Registry(), imageio.NewCache(64), nil)
	_, info, err := loader.Load(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info.MipLevel != 0 {
		t.Fatalf("expected native level for size 0, got %d", info.MipLevel)
	}
}

func TestLoaderClassifiesErrors(t *testing.T) {
	dir := t.TempDir()
	fake := testsupport.NewFakeCodec()
	loader := imageio.NewLoader(fake.Registry(), imageio.NewCache(64), nil)

	if _, _, err := loader.Load(context.Background(), filepath.Join(dir, "nope.exr"), 64); !errors.Is(err, services.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}

	bad := testsupport.Solid(4, 4, []string{"R", "G", "B"})
	bad.Pixels = bad.Pixels[:5]
	path := fake.Add(t, dir, "short.exr", testsupport.Single(bad))
	if _, _, err := loader.Load(context.Background(), path, 64); !errors.Is(err, services.ErrRead) {
		t.Fatalf("expected ErrRead, got %v", err)
	}
}

func TestLoaderLogsDecodedSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plate.png")
	testsupport.WritePNG(t, src, testsupport.Gradient16(12, 6))
	info, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}

	logPath := filepath.Join(dir, "loader.log")
	noColor := false
	logger, err := logging.New(logging.Options{Level: "debug", OutputPaths: []string{logPath}, Color: &noColor})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	loader := imageio.NewLoader(nil, imageio.NewCache(16), logger)
	if _, _, err := loader.Load(context.Background(), src, 0); err != nil {
		t.Fatalf("load: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"loader: source decoded", "codec=std", "bytes=" + strconv.FormatInt(info.Size(), 10), "width=12"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}
