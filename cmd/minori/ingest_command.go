package main

import (
	"fmt"
	"strconv"
	"time"

	"MinoriAI/internal/config"

	"github.com/spf13/cobra"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var dir string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the advisory PDF corpus into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			if dir != "" {
				env.KnowledgeDir = dir
			}

			gem, err := ctx.gemini(true)
			if err != nil {
				return err
			}
			defer gem.Close()

			logger := ctx.logger()
			store, err := config.NewVectorStore(cmd.Context(), env, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := config.BuildIndex(cmd.Context(), env, store, gem, force, logger)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Corpus", "Documents", "Chunks", "Skipped", "Duration"},
				[][]string{{
					env.KnowledgeDir,
					strconv.Itoa(report.Documents),
					strconv.Itoa(report.Chunks),
					strconv.FormatBool(report.Skipped),
					report.Duration.Round(time.Millisecond).String(),
				}},
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the index even if it is already populated")
	cmd.Flags().StringVar(&dir, "dir", "", "Corpus directory (defaults to KNOWLEDGE_DIR)")

	return cmd
}
