// Package convert runs the full single-image conversion: lock, load,
// channel resolution, transform, write and unlock.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"thumbconv/internal/channels"
	"thumbconv/internal/config"
	"thumbconv/internal/imageio"
	"thumbconv/internal/lockfile"
	"thumbconv/internal/logging"
	"thumbconv/internal/output"
	"thumbconv/internal/services"
	"thumbconv/internal/transform"
)

// DefaultSize is the thumbnail longest edge used when none is configured.
const DefaultSize = 512

// Options control one conversion.
type Options struct {
	// Size is the output longest edge; 0 keeps the source size.
	Size int
	// Threads bounds the kernel goroutines of this one conversion; 0 is auto.
	Threads int
	// SourceColorSpace overrides the colour space declared by the source.
	SourceColorSpace string
	// Stamp writes a provenance sidecar next to the output.
	Stamp bool
}

// DefaultOptions returns options for a 512 pixel thumbnail.
func DefaultOptions() Options {
	return Options{Size: DefaultSize}
}

// OptionsFromConfig maps the [conversion] section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Size:             cfg.Conversion.Size,
		Threads:          cfg.Conversion.Threads,
		SourceColorSpace: cfg.Conversion.SourceColorSpace,
		Stamp:            cfg.Conversion.Stamp,
	}
}

// Result summarizes a finished conversion.
type Result struct {
	CorrelationID string
	Source        imageio.Source
	Mapping       channels.Mapping
	Transform     transform.Result
	Output        string
	Elapsed       time.Duration
}

// Converter wires the conversion stages together. It is safe for concurrent
// use; conversions only share the lock manager and the image cache.
type Converter struct {
	loader   *imageio.Loader
	locks    *lockfile.Manager
	pipeline *transform.Pipeline
	writer   *output.Writer
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Converter.
type Option func(*Converter)

// WithLoader replaces the image loader.
func WithLoader(l *imageio.Loader) Option {
	return func(c *Converter) { c.loader = l }
}

// WithLocks replaces the lock manager.
func WithLocks(m *lockfile.Manager) Option {
	return func(c *Converter) { c.locks = m }
}

// WithWriter replaces the output writer.
func WithWriter(w *output.Writer) Option {
	return func(c *Converter) { c.writer = w }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) { c.logger = logger }
}

// WithClock overrides the stamp clock.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) { c.now = now }
}

// New builds a converter; unset collaborators use package defaults.
func New(opts ...Option) *Converter {
	c := &Converter{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.loader == nil {
		c.loader = imageio.NewLoader(nil, nil, c.logger)
	}
	if c.locks == nil {
		c.locks = lockfile.New(lockfile.WithLogger(c.logger))
	}
	if c.writer == nil {
		c.writer = output.NewWriter(0, c.logger)
	}
	c.pipeline = transform.NewPipeline(c.logger)
	c.logger = logging.NewComponentLogger(c.logger, "convert")
	return c
}

// NewFromConfig builds a converter honouring the lock, cache, tool and
// writer settings of cfg. The shared cache budget is adjusted as a side effect.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Converter {
	cache := imageio.SharedCache()
	cache.SetMaxMemoryMB(cfg.Cache.MaxMemoryMB)
	registry := imageio.NewRegistry(imageio.BuiltinCodecs(imageio.MovieTools{
		FFprobe: cfg.Tools.FFprobe,
		FFmpeg:  cfg.Tools.FFmpeg,
	})...)
	base := []Option{
		WithLogger(logger),
		WithLoader(imageio.NewLoader(registry, cache, logger)),
		WithLocks(lockfile.New(lockfile.WithStaleAfter(cfg.StaleAfter()), lockfile.WithLogger(logger))),
		WithWriter(output.NewWriter(cfg.Conversion.JPEGQuality, logger)),
	}
	return New(append(base, opts...)...)
}

// Locks exposes the lock manager so callers can share it.
func (c *Converter) Locks() *lockfile.Manager { return c.locks }

// Convert produces output from input. It refuses with
// services.ErrLockContention when another conversion holds output's lock.
// Flatten and colour problems are logged and do not fail the call.
func (c *Converter) Convert(ctx context.Context, input, out string, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{CorrelationID: uuid.NewString(), Output: out}
	if err := validate(input, out, opts); err != nil {
		return res, err
	}

	ctx = services.WithRequestID(ctx, res.CorrelationID)
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String(logging.FieldInput, input),
		logging.String(logging.FieldOutput, out),
	)

	if !c.locks.Acquire(out) {
		logger.Info("destination locked; skipping")
		return res, services.Wrap(services.ErrLockContention, "lock", "acquire", lockfile.Path(out), nil)
	}
	defer func() {
		if err := c.locks.Release(out); err != nil {
			logger.Warn("lock release failed", logging.Error(err))
		}
	}()
	defer c.loader.Invalidate(input)

	buf, src, err := c.loader.Load(services.WithStage(ctx, "load"), input, opts.Size)
	res.Source = src
	if err != nil {
		logger.Error("load failed", logging.Error(err))
		return res, err
	}

	resolved, mapping, err := channels.ResolveBuffer(buf)
	if err != nil {
		err = services.Wrap(services.ErrTransform, "channels", "resolve", "", err)
		logger.Error("channel resolution failed", logging.Error(err))
		return res, err
	}
	res.Mapping = mapping
	logger.Debug("channels resolved",
		logging.String("source_channels", strings.Join(buf.Spec.ChannelNames, ",")),
		logging.String("mapping", mapping.String()),
	)

	img, tres, err := c.pipeline.Run(ctx, resolved, transform.Options{
		Size:             opts.Size,
		Threads:          opts.Threads,
		SourceColorSpace: opts.SourceColorSpace,
	})
	res.Transform = tres
	if err != nil {
		logger.Error("transform failed", logging.Error(err))
		return res, err
	}

	if err := c.writer.Write(img, out); err != nil {
		logger.Error("write failed", logging.Error(err))
		return res, err
	}

	if opts.Stamp {
		stamp := output.Stamp{
			SourcePath: input,
			SourceSize: src.Size,
			StampTime:  c.now().UTC(),
			ColorSpace: transform.TargetColorSpace,
		}
		if err := output.WriteStamp(out, stamp); err != nil {
			logger.Warn("stamp write failed", logging.Error(err))
		}
	}

	res.Elapsed = time.Since(start)
	logger.Info("thumbnail written",
		logging.Int("width", tres.Width),
		logging.Int("height", tres.Height),
		logging.Int("warnings", len(tres.Warnings)),
		logging.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func validate(input, out string, opts Options) error {
	switch {
	case strings.TrimSpace(input) == "":
		return services.Wrap(services.ErrInvalidArgument, "convert", "validate", "input path is empty", nil)
	case strings.TrimSpace(out) == "":
		return services.Wrap(services.ErrInvalidArgument, "convert", "validate", "output path is empty", nil)
	case opts.Size < 0:
		return services.Wrap(services.ErrInvalidArgument, "convert", "validate", fmt.Sprintf("size %d is negative", opts.Size), nil)
	}
	if _, _, err := output.EncodingFor(out); err != nil {
		return services.Wrap(services.ErrInvalidArgument, "convert", "validate", "", err)
	}
	return nil
}
