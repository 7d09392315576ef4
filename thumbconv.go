// Package thumbconv exposes the converter to applications that embed it
// instead of shelling out to the thumbconv binary.
//
// The functions take plain values and report integer status codes so they
// can sit behind a foreign-function boundary. Failures are logged to stderr.
package thumbconv

import (
	"context"
	"log/slog"

	"thumbconv/internal/convert"
	"thumbconv/internal/logging"
	"thumbconv/internal/output"
	"thumbconv/internal/sequence"
)

// ConvertImage writes an sRGB thumbnail of input to output. It returns 0 on
// success and 1 on failure. A size of 0 keeps the source dimensions and a
// thread count of 0 uses every CPU.
func ConvertImage(input, output string, size, threads int, verbose bool) int {
	logger := facadeLogger(verbose)
	conv := convert.New(convert.WithLogger(logger))
	opts := convert.DefaultOptions()
	opts.Size = size
	opts.Threads = threads
	if _, err := conv.Convert(context.Background(), input, output, opts); err != nil {
		logger.Error("conversion failed",
			logging.String(logging.FieldInput, input),
			logging.String(logging.FieldOutput, output),
			logging.Error(err))
		return 1
	}
	return 0
}

// ConvertImages converts inputs[i] to outputs[i] in order with one shared
// converter. It returns 1 without converting anything when the slices differ
// in length, and stops at the first pair that fails.
func ConvertImages(inputs, outputs []string, size, threads int, verbose bool) int {
	logger := facadeLogger(verbose)
	if len(inputs) != len(outputs) {
		logger.Error("input and output counts differ",
			logging.Int("inputs", len(inputs)),
			logging.Int("outputs", len(outputs)))
		return 1
	}
	conv := convert.New(convert.WithLogger(logger))
	opts := convert.DefaultOptions()
	opts.Size = size
	opts.Threads = threads
	for i := range inputs {
		if _, err := conv.Convert(context.Background(), inputs[i], outputs[i], opts); err != nil {
			logger.Error("conversion failed",
				logging.Int(logging.FieldItemIndex, i),
				logging.String(logging.FieldInput, inputs[i]),
				logging.String(logging.FieldOutput, outputs[i]),
				logging.Error(err))
			return 1
		}
	}
	return 0
}

// ConvertSequence converts every frame matched by the pattern in input and
// names outputs after output with the frame position inserted. It returns 0
// when no frame failed; frames skipped because another process holds their
// destination do not count as failures.
func ConvertSequence(input, output string, size, threads int, verbose bool) int {
	logger := facadeLogger(verbose)
	orch := sequence.NewOrchestrator(convert.New(convert.WithLogger(logger)), logger)
	report, err := orch.Run(context.Background(), input, output, sequence.Options{
		Size:    size,
		Threads: threads,
	})
	if err != nil {
		logger.Error("sequence conversion failed",
			logging.String(logging.FieldInput, input),
			logging.Error(err))
		return 1
	}
	if report.Failed() > 0 {
		return 1
	}
	return 0
}

// IsUpToDate compares the stamp written next to thumbnail with source. It
// returns 1 when they match, 0 when the source changed and -1 when either
// side cannot be read.
func IsUpToDate(source, thumbnail string) int {
	switch output.CheckUpToDate(source, thumbnail) {
	case output.UpToDate:
		return 1
	case output.Stale:
		return 0
	default:
		return -1
	}
}

func facadeLogger(verbose bool) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}
