package main

import (
	"github.com/spf13/cobra"

	"thumbconv/internal/convert"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var flags conversionFlags

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "thumbconv",
		Short:         "Convert images into display-ready sRGB thumbnails",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Usage is only useful for flag errors, which cobra reports
			// before RunE.
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
			conv := convert.NewFromConfig(cfg, logger)
			opts := convert.OptionsFromConfig(cfg)
			_, err = conv.Convert(cmd.Context(), flags.input, flags.output, opts)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.register(rootCmd)

	rootCmd.AddCommand(newSequenceCommand(ctx))
	rootCmd.AddCommand(newUpToDateCommand())
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
