package testsupport

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"thumbconv/internal/imageio"
)

// FakeSource is an in-memory image: Levels[subimage][miplevel].
type FakeSource struct {
	Levels [][]*imageio.Buffer
}

// Single wraps one buffer as a one-subimage, one-level source.
func Single(buf *imageio.Buffer) FakeSource {
	return FakeSource{Levels: [][]*imageio.Buffer{{buf}}}
}

// FakeCodec serves FakeSources registered by file name. Files must still
// exist on disk because the cache stats them.
type FakeCodec struct {
	mu      sync.Mutex
	sources map[string]FakeSource
	opens   int
	failing map[string]error
}

// NewFakeCodec returns an empty fake codec for ".exr" and ".fake" paths.
func NewFakeCodec() *FakeCodec {
	return &FakeCodec{sources: map[string]FakeSource{}, failing: map[string]error{}}
}

func (c *FakeCodec) Name() string { return "fake" }

func (c *FakeCodec) Extensions() []string { return []string{".exr", ".fake"} }

func (c *FakeCodec) Capabilities() imageio.Capabilities {
	return imageio.Capabilities{Subimages: true, MipLevels: true, Deep: true}
}

// Add writes a placeholder file named name under dir and serves src for it.
func (c *FakeCodec) Add(t testing.TB, dir, name string, src FakeSource) string {
	t.Helper()

	path := filepath.Join(dir, name)
	WriteFile(t, path, 16)
	c.mu.Lock()
	c.sources[name] = src
	c.mu.Unlock()
	return path
}

// Fail makes opening name return err.
func (c *FakeCodec) Fail(name string, err error) {
	c.mu.Lock()
	c.failing[name] = err
	c.mu.Unlock()
}

// Opens returns how many times Open was called.
func (c *FakeCodec) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *FakeCodec) Open(path string) (imageio.Input, error) {
	name := filepath.Base(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if err := c.failing[name]; err != nil {
		return nil, err
	}
	src, ok := c.sources[name]
	if !ok {
		return nil, fmt.Errorf("fake codec: unknown source %q", name)
	}
	return &fakeInput{src: src}, nil
}

// Registry returns a registry holding the std codec and c.
func (c *FakeCodec) Registry() *imageio.Registry {
	return imageio.NewRegistry(imageio.StdCodec(), c)
}

type fakeInput struct {
	src FakeSource
}

func (in *fakeInput) NumSubimages() int { return len(in.src.Levels) }

func (in *fakeInput) NumMipLevels(subimage int) int {
	if subimage < 0 || subimage >= len(in.src.Levels) {
		return 0
	}
	return len(in.src.Levels[subimage])
}

func (in *fakeInput) level(subimage, miplevel int) (*imageio.Buffer, error) {
	if subimage < 0 || subimage >= len(in.src.Levels) {
		return nil, fmt.Errorf("subimage %d out of range", subimage)
	}
	mips := in.src.Levels[subimage]
	if miplevel < 0 || miplevel >= len(mips) {
		return nil, fmt.Errorf("mip level %d out of range", miplevel)
	}
	return mips[miplevel], nil
}

func (in *fakeInput) Spec(subimage, miplevel int) (imageio.Spec, error) {
	buf, err := in.level(subimage, miplevel)
	if err != nil {
		return imageio.Spec{}, err
	}
	return buf.Spec.Clone(), nil
}

func (in *fakeInput) Read(subimage, miplevel int) (*imageio.Buffer, error) {
	buf, err := in.level(subimage, miplevel)
	if err != nil {
		return nil, err
	}
	return buf.Clone(), nil
}

func (in *fakeInput) Close() error { return nil }

// Solid returns a flat buffer filled with one value per channel.
func Solid(w, h int, names []string, values ...float32) *imageio.Buffer {
	buf := imageio.NewBuffer(imageio.Spec{Width: w, Height: h, ChannelNames: names})
	n := len(names)
	for i := 0; i < w*h; i++ {
		for c := 0; c < n && c < len(values); c++ {
			buf.Pixels[i*n+c] = values[c]
		}
	}
	return buf
}

// Deep returns a deep buffer in which every pixel carries the same samples,
// front to back.
func Deep(w, h int, names []string, samples ...[]float32) *imageio.Buffer {
	perPixel := make([]float32, 0, len(samples)*len(names))
	for _, s := range samples {
		perPixel = append(perPixel, s...)
	}
	all := make([][]float32, w*h)
	for i := range all {
		all[i] = append([]float32(nil), perPixel...)
	}
	return imageio.NewDeepBuffer(imageio.Spec{Width: w, Height: h, ChannelNames: names}, all)
}
