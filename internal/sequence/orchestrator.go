package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"thumbconv/internal/convert"
	"thumbconv/internal/fileutil"
	"thumbconv/internal/logging"
	"thumbconv/internal/services"
)

// Options control a sequence run.
type Options struct {
	// Size is the thumbnail longest edge for every frame.
	Size int
	// Threads is the worker count; 0 uses the number of CPUs.
	Threads          int
	SourceColorSpace string
	Stamp            bool
	// FrameNumbers names outputs by parsed frame number instead of by
	// position in the discovered ordering.
	FrameNumbers bool
}

// Status is the outcome of one frame.
type Status int

const (
	StatusPending Status = iota
	StatusConverted
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Item records one frame's conversion.
type Item struct {
	Index   int
	Frame   Frame
	Output  string
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Report summarizes a sequence run.
type Report struct {
	Pattern string
	Workers int
	Items   []Item
	Elapsed time.Duration
}

// Count returns how many items ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// Converted, Skipped and Failed count items by status.
func (r *Report) Converted() int { return r.Count(StatusConverted) }
func (r *Report) Skipped() int   { return r.Count(StatusSkipped) }
func (r *Report) Failed() int    { return r.Count(StatusFailed) }

// Orchestrator fans sequence frames out to a worker pool.
type Orchestrator struct {
	converter *convert.Converter
	logger    *slog.Logger
}

// NewOrchestrator returns an orchestrator converting frames with converter.
func NewOrchestrator(converter *convert.Converter, logger *slog.Logger) *Orchestrator {
	if converter == nil {
		converter = convert.New(convert.WithLogger(logger))
	}
	return &Orchestrator{converter: converter, logger: logging.NewComponentLogger(logger, "sequence")}
}

// Run discovers the frames of input and converts each to an indexed path
// derived from out. Per-frame failures are recorded in the report. Run
// returns once every worker has finished; a cancelled ctx stops workers
// from taking new frames.
func (o *Orchestrator) Run(ctx context.Context, input, out string, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{Pattern: input}

	for _, dir := range []string{filepath.Dir(input), filepath.Dir(out)} {
		if !fileutil.DirExists(dir) {
			return report, services.Wrap(services.ErrInvalidArgument, "sequence", "validate",
				fmt.Sprintf("directory %s does not exist", dir), nil)
		}
	}

	pattern, frames, err := Discover(input)
	if err != nil {
		return report, err
	}
	report.Pattern = pattern.Regexp()
	report.Items = make([]Item, len(frames))
	for i, f := range frames {
		index := i
		if opts.FrameNumbers {
			index = f.Number
		}
		dest, err := OutputPath(out, index)
		if err != nil {
			return report, err
		}
		report.Items[i] = Item{Index: i, Frame: f, Output: dest}
	}

	workers := opts.Threads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(frames)))
	report.Workers = workers

	o.logger.Info("sequence discovered",
		logging.String(logging.FieldInput, input),
		logging.Int("frames", len(frames)),
		logging.Int("workers", workers),
	)

	tasks := make(chan int, len(frames))
	for i := range report.Items {
		tasks <- i
	}
	close(tasks)

	itemOpts := convert.Options{
		Size:             opts.Size,
		Threads:          1,
		SourceColorSpace: opts.SourceColorSpace,
		Stamp:            opts.Stamp,
	}
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range tasks {
				if ctx.Err() != nil {
					continue
				}
				o.runItem(ctx, &report.Items[i], itemOpts)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Elapsed = time.Since(start)
	o.logger.Info("sequence finished",
		logging.Int("converted", report.Converted()),
		logging.Int("skipped", report.Skipped()),
		logging.Int("failed", report.Failed()),
		logging.Duration("elapsed", report.Elapsed),
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (o *Orchestrator) runItem(ctx context.Context, item *Item, opts convert.Options) {
	ctx = services.WithItemIndex(ctx, item.Index)
	started := time.Now()
	_, err := o.converter.Convert(ctx, item.Frame.Path, item.Output, opts)
	item.Elapsed = time.Since(started)
	item.Err = err

	logger := logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldInput, item.Frame.Path))
	switch {
	case err == nil:
		item.Status = StatusConverted
	case services.IsSkip(err):
		item.Status = StatusSkipped
		logger.Info("frame skipped", logging.Error(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		item.Status = StatusSkipped
	default:
		item.Status = StatusFailed
		logger.Error("frame failed", logging.Error(err))
	}
}
