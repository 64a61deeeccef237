package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"MinoriAI/internal/advisory"
	"MinoriAI/internal/entity"

	"github.com/spf13/cobra"
)

func newAdviseCommand(ctx *commandContext) *cobra.Command {
	var cropFlag string

	cmd := &cobra.Command{
		Use:   "advise <disease>",
		Short: "Ask the knowledge base how to treat a disease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			crop, err := entity.ParseCrop(cropFlag)
			if err != nil {
				return err
			}

			gem, err := ctx.gemini(true)
			if err != nil {
				return err
			}
			defer gem.Close()

			lookup, closeAdvisor, err := ctx.openAdvisor(cmd.Context(), env, gem)
			if err != nil {
				return err
			}
			defer closeAdvisor()

			start := time.Now()
			answer, err := lookup.Fetch(cmd.Context(), crop, args[0])
			if err != nil {
				return err
			}
			if answer.Latency == 0 {
				answer.Latency = time.Since(start)
			}

			return writeAdvice(cmd.OutOrStdout(), crop, args[0], answer)
		},
	}

	cmd.Flags().StringVar(&cropFlag, "crop", "rice", "Crop the disease affects (rice or wheat)")

	return cmd
}

func writeAdvice(w io.Writer, crop entity.Crop, disease string, answer advisory.Answer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s / %s (%.1fs)\n\n", crop.Title(), disease, answer.Latency.Seconds())
	b.WriteString(strings.TrimSpace(answer.Text))
	b.WriteString("\n")
	if !answer.Known {
		b.WriteString("\nNo relevant passage was found in the knowledge base.\n")
	}
	if len(answer.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for _, s := range answer.Sources {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
