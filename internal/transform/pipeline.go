package transform

import (
	"context"
	"image"
	"log/slog"

	"thumbconv/internal/imageio"
	"thumbconv/internal/logging"
	"thumbconv/internal/services"
)

// Options control one pipeline run.
type Options struct {
	// Size is the target longest edge; 0 keeps the native size.
	Size int
	// Threads bounds colour conversion goroutines; 0 picks automatically.
	Threads int
	// SourceColorSpace overrides the buffer's declared colour space.
	SourceColorSpace string
}

// Result describes what the pipeline did.
type Result struct {
	Width            int
	Height           int
	Flattened        bool
	SourceColorSpace string
	ColorConverted   bool
	Resized          bool
	// Warnings holds the non-fatal stage errors.
	Warnings []error
}

// Pipeline runs flatten, colour conversion and resize in order.
type Pipeline struct {
	logger *slog.Logger
}

// NewPipeline returns a pipeline that logs through logger.
func NewPipeline(logger *slog.Logger) *Pipeline {
	return &Pipeline{logger: logging.NewComponentLogger(logger, "transform")}
}

// Run transforms a channel-resolved buffer into the final 8-bit image.
func (p *Pipeline) Run(ctx context.Context, buf *imageio.Buffer, opts Options) (*image.NRGBA, Result, error) {
	var res Result

	if buf.Deep != nil {
		stageCtx := services.WithStage(ctx, "flatten")
		flat, err := Flatten(buf)
		if err != nil && services.IsFatal(err) {
			return nil, res, err
		}
		if err != nil {
			p.warn(stageCtx, "deep flatten failed; using front samples", err)
			res.Warnings = append(res.Warnings, err)
			flat = buf.Clone()
			flat.Deep = nil
			flat.Spec.Deep = false
		} else {
			res.Flattened = true
			logging.WithContext(stageCtx, p.logger).Debug("deep image flattened")
		}
		buf = flat
	}

	res.SourceColorSpace = opts.SourceColorSpace
	if res.SourceColorSpace == "" {
		res.SourceColorSpace = buf.Spec.DeclaredColorSpace()
	}
	if !IsTarget(res.SourceColorSpace) {
		stageCtx := services.WithStage(ctx, "color")
		if err := ConvertColor(stageCtx, buf, res.SourceColorSpace, opts.Threads); err != nil {
			if ctx.Err() != nil {
				return nil, res, ctx.Err()
			}
			if services.IsFatal(err) {
				return nil, res, err
			}
			p.warn(stageCtx, "colour conversion failed; continuing unconverted", err)
			res.Warnings = append(res.Warnings, err)
		} else {
			res.ColorConverted = true
			logging.WithContext(stageCtx, p.logger).Debug("colour converted",
				logging.String("from", res.SourceColorSpace),
				logging.String("to", TargetColorSpace),
			)
		}
	}

	res.Width, res.Height = TargetSize(buf.Spec.Width, buf.Spec.Height, opts.Size)
	img, resized, err := Fit(buf, res.Width, res.Height)
	if err != nil {
		return nil, res, err
	}
	res.Resized = resized
	logging.WithContext(services.WithStage(ctx, "resize"), p.logger).Debug("image fitted",
		logging.Int("width", res.Width),
		logging.Int("height", res.Height),
		logging.Bool("resampled", resized),
	)
	return img, res, nil
}

func (p *Pipeline) warn(ctx context.Context, msg string, err error) {
	logging.WithContext(ctx, p.logger).Warn(msg, logging.Error(err))
}
