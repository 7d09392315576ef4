package imageio

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"thumbconv/internal/fileutil"
	"thumbconv/internal/logging"
	"thumbconv/internal/services"
)

// Source records where a loaded buffer came from.
type Source struct {
	Path         string
	Size         int64
	Codec        string
	Format       string
	Subimages    int
	Subimage     int
	MipLevels    int
	MipLevel     int
	NativeWidth  int
	NativeHeight int
}

// Loader picks the subimage and mip level to decode for a thumbnail request.
type Loader struct {
	registry *Registry
	cache    *Cache
	logger   *slog.Logger
}

// NewLoader builds a loader. Nil arguments fall back to the default registry,
// the shared cache and a discarding logger.
func NewLoader(registry *Registry, cache *Cache, logger *slog.Logger) *Loader {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if cache == nil {
		cache = SharedCache()
	}
	return &Loader{
		registry: registry,
		cache:    cache,
		logger:   logging.NewComponentLogger(logger, "loader"),
	}
}

// Registry returns the codec registry used by the loader.
func (l *Loader) Registry() *Registry { return l.registry }

// Load opens path and decodes the middle subimage at the smallest mip level
// whose width and height both reach longestEdge, or level 0 when none does.
// A longestEdge of 0 means the source's own size. Open failures carry
// services.ErrOpen and decode failures services.ErrRead.
func (l *Loader) Load(ctx context.Context, path string, longestEdge int) (*Buffer, Source, error) {
	src := Source{Path: path}
	if err := ctx.Err(); err != nil {
		return nil, src, err
	}
	size, err := fileutil.RegularFileSize(path)
	if err != nil {
		return nil, src, services.Wrap(services.ErrOpen, "load", "stat source", "", err)
	}
	src.Size = size

	codec, err := l.registry.Lookup(path)
	if err != nil {
		return nil, src, services.Wrap(services.ErrOpen, "load", "select codec", "", err)
	}
	src.Codec = codec.Name()

	input, release, err := l.cache.Open(path, codec)
	if err != nil {
		return nil, src, services.Wrap(services.ErrOpen, "load", "open source", codec.Name(), err)
	}
	defer release()

	src.Subimages = input.NumSubimages()
	if src.Subimages < 1 {
		return nil, src, services.Wrap(services.ErrOpen, "load", "open source", "file holds no images", nil)
	}
	src.Subimage = SelectSubimage(src.Subimages)

	src.MipLevels = input.NumMipLevels(src.Subimage)
	if src.MipLevels < 1 {
		src.MipLevels = 1
	}
	sizes := make([]image.Point, 0, src.MipLevels)
	for m := 0; m < src.MipLevels; m++ {
		spec, err := input.Spec(src.Subimage, m)
		if err != nil {
			return nil, src, services.Wrap(services.ErrRead, "load", "read spec", fmt.Sprintf("mip level %d", m), err)
		}
		if m == 0 {
			src.Format = spec.Format
			src.NativeWidth, src.NativeHeight = spec.Width, spec.Height
		}
		sizes = append(sizes, image.Pt(spec.Width, spec.Height))
	}
	target := longestEdge
	if target <= 0 {
		target = max(sizes[0].X, sizes[0].Y)
	}
	src.MipLevel = SelectMipLevel(sizes, target)

	if err := ctx.Err(); err != nil {
		return nil, src, err
	}
	buf, err := input.Read(src.Subimage, src.MipLevel)
	if err != nil {
		return nil, src, services.Wrap(services.ErrRead, "load", "decode pixels",
			fmt.Sprintf("subimage %d mip %d", src.Subimage, src.MipLevel), err)
	}
	if err := buf.Validate(); err != nil {
		return nil, src, services.Wrap(services.ErrRead, "load", "decode pixels", "", err)
	}

	l.logger.Debug("source decoded",
		logging.String(logging.FieldInput, path),
		logging.String("codec", src.Codec),
		logging.Int64("bytes", src.Size),
		logging.Int("subimage", src.Subimage),
		logging.Int("subimages", src.Subimages),
		logging.Int("mip_level", src.MipLevel),
		logging.Int("width", buf.Spec.Width),
		logging.Int("height", buf.Spec.Height),
		logging.Int("channels", buf.Spec.NChannels()),
		logging.Bool("deep", buf.Deep != nil),
	)
	return buf, src, nil
}

// Invalidate drops path from the loader's cache.
func (l *Loader) Invalidate(path string) {
	l.cache.Invalidate(path)
}

// SelectSubimage returns the middle subimage index of n.
func SelectSubimage(n int) int {
	if n <= 0 {
		return 0
	}
	return n / 2
}

// SelectMipLevel returns the smallest level whose width and height are both
// at least target. sizes is ordered from largest (level 0) to smallest.
func SelectMipLevel(sizes []image.Point, target int) int {
	best := 0
	bestArea := -1
	for i, s := range sizes {
		if s.X < target || s.Y < target {
			continue
		}
		if area := s.X * s.Y; bestArea < 0 || area < bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
