package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"thumbconv/internal/output"
)

func newUpToDateCommand() *cobra.Command {
	var input, dest string

	cmd := &cobra.Command{
		Use:   "uptodate",
		Short: "Check a stamped thumbnail against its source",
		Long: "Exit 0 when the thumbnail's stamp matches the source size, 1 when it is stale\n" +
			"and 2 when the source, thumbnail or stamp cannot be read.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			state := output.CheckUpToDate(input, dest)
			fmt.Fprintln(cmd.OutOrStdout(), state)
			switch state {
			case output.UpToDate:
				return nil
			case output.Stale:
				return &exitError{code: 1}
			default:
				return &exitError{code: 2}
			}
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Source image path")
	cmd.Flags().StringVarP(&dest, "output", "o", "", "Thumbnail path")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
