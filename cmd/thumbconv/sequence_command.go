package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"thumbconv/internal/convert"
	"thumbconv/internal/sequence"
)

func newSequenceCommand(ctx *commandContext) *cobra.Command {
	var flags conversionFlags
	var frameNumbers bool

	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Convert every frame of a numbered sequence",
		Long: "Convert every frame matching a pattern such as shot.%04d.exr or shot.####.exr.\n" +
			"Outputs are named <output stem>.<index><output extension>.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err = flags.apply(cmd, cfg)
			if err != nil {
				return err
			}
			logger, err := ctx.logger(flags.verbose)
			if err != nil {
				return err
			}

			orch := sequence.NewOrchestrator(convert.NewFromConfig(cfg, logger), logger)
			report, err := orch.Run(cmd.Context(), flags.input, flags.output, sequence.Options{
				Size:             cfg.Conversion.Size,
				Threads:          cfg.Conversion.Threads,
				SourceColorSpace: cfg.Conversion.SourceColorSpace,
				Stamp:            cfg.Conversion.Stamp,
				FrameNumbers:     frameNumbers,
			})
			if err != nil {
				return err
			}
			printSequenceReport(cmd, report)
			if report.Failed() > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&frameNumbers, "frame-numbers", false, "Name outputs by frame number instead of position")
	return cmd
}

func printSequenceReport(cmd *cobra.Command, report *sequence.Report) {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		note := ""
		if item.Err != nil {
			note = item.Err.Error()
		}
		rows = append(rows, []string{
			strconv.Itoa(item.Index),
			strconv.Itoa(item.Frame.Number),
			filepath.Base(item.Output),
			item.Status.String(),
			item.Elapsed.Round(time.Millisecond).String(),
			note,
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"#", "Frame", "Output", "Status", "Time", "Error"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "%d converted, %d skipped, %d failed with %d workers in %s\n",
		report.Converted(), report.Skipped(), report.Failed(), report.Workers,
		report.Elapsed.Round(time.Millisecond))
}
