package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"thumbconv/internal/config"
)

// conversionFlags are shared by the root and sequence commands.
type conversionFlags struct {
	input            string
	output           string
	size             int
	threads          int
	verbose          bool
	sourceColorSpace string
	stamp            bool
}

func (f *conversionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "Source image path")
	flags.StringVarP(&f.output, "output", "o", "", "Destination image path")
	flags.IntVarP(&f.size, "size", "s", config.Default().Conversion.Size, "Longest edge of the thumbnail in pixels (0 keeps the source size)")
	flags.IntVarP(&f.threads, "threads", "t", 0, "Thread count (0 uses every CPU)")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&f.sourceColorSpace, "source-color-space", "", "Override the colour space declared by the source")
	flags.BoolVar(&f.stamp, "stamp", false, "Write a provenance stamp next to each output")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
}

// apply copies explicitly set flags over cfg and validates the result.
func (f *conversionFlags) apply(cmd *cobra.Command, cfg *config.Config) (*config.Config, error) {
	merged := *cfg
	flags := cmd.Flags()
	if flags.Changed("size") {
		merged.Conversion.Size = f.size
	}
	if flags.Changed("threads") {
		merged.Conversion.Threads = f.threads
	}
	if flags.Changed("source-color-space") {
		merged.Conversion.SourceColorSpace = strings.TrimSpace(f.sourceColorSpace)
	}
	if flags.Changed("stamp") {
		merged.Conversion.Stamp = f.stamp
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return &merged, nil
}
