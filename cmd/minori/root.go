package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFile string

	ctx := newCommandContext(&envFile)

	rootCmd := &cobra.Command{
		Use:           "minori",
		Short:         "Crop leaf disease detection and treatment advice",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureEnv()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load before reading the environment")

	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newClassifyCommand(ctx))
	rootCmd.AddCommand(newAdviseCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))

	return rootCmd
}
