package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"MinoriAI/internal/config"
	"MinoriAI/internal/entity"
	"MinoriAI/pkg/utils"

	"github.com/spf13/cobra"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var cropFlag string

	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify leaf images with the crop's disease model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			crop, err := entity.ParseCrop(cropFlag)
			if err != nil {
				return err
			}

			gem, err := ctx.gemini(env.ClassifierBackend == config.ClassifierGemini)
			if err != nil {
				return err
			}
			if gem != nil {
				defer gem.Close()
			}

			models, err := ctx.loadModels(cmd.Context(), env, gem, []entity.Crop{crop})
			if err != nil {
				return err
			}
			defer models.Close()

			model, err := models.Get(crop)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				img, err := utils.DecodeImage(data)
				if err != nil {
					rows = append(rows, []string{filepath.Base(path), "-", "-", err.Error()})
					continue
				}

				start := time.Now()
				label, err := model.Classify(cmd.Context(), img)
				if err != nil {
					rows = append(rows, []string{filepath.Base(path), "-", "-", err.Error()})
					continue
				}
				d := entity.NewDetectionResult(crop, label, time.Now(), time.Since(start))
				rows = append(rows, classifyRow(filepath.Base(path), d))
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Image", "Disease", "Latency", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&cropFlag, "crop", "rice", "Crop model to use (rice or wheat)")

	return cmd
}

func classifyRow(name string, d entity.DetectionResult) []string {
	return []string{
		name,
		d.DisplayName(),
		fmt.Sprintf("%dms", d.Latency.Milliseconds()),
		d.StatusText(),
	}
}
