package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"MinoriAI/internal/entity"
	"MinoriAI/internal/session"
	"MinoriAI/pkg/camera"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	dir         string
	snapshotURL string
	interval    time.Duration
	loop        bool
	mirror      bool
	overlay     string
	crop        string
}

func (o watchOptions) source() (camera.Source, error) {
	var src camera.Source
	switch {
	case o.dir != "" && o.snapshotURL != "":
		return nil, errors.New("use either --dir or --snapshot-url, not both")
	case o.dir != "":
		src = camera.NewDirectory(o.dir, o.loop, o.interval)
	case o.snapshotURL != "":
		src = camera.NewSnapshot(o.snapshotURL, o.interval)
	default:
		return nil, errors.New("a camera source is required: --dir or --snapshot-url")
	}
	if o.mirror {
		src = camera.Mirror(src)
	}
	return src, nil
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the live detection loop against a camera source",
		Long: "Run the live detection loop against a camera source.\n\n" +
			"While running, press Enter to analyze the current frame immediately,\n" +
			"type a crop name (rice, wheat) to switch models, or q to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			src, err := opts.source()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := env.SessionConfig()
			if err != nil {
				return err
			}
			if opts.crop != "" {
				if cfg.Crop, err = entity.ParseCrop(opts.crop); err != nil {
					return err
				}
			}

			gem, err := ctx.gemini(true)
			if err != nil {
				return err
			}
			defer gem.Close()

			models, err := ctx.loadModels(runCtx, env, gem, entity.Crops())
			if err != nil {
				return err
			}
			defer models.Close()

			advisor, closeAdvisor, err := ctx.openAdvisor(runCtx, env, gem)
			if err != nil {
				return err
			}
			defer closeAdvisor()

			logger := ctx.logger()
			sinks := session.Multi{session.NewTerminal(cmd.OutOrStdout(), logger)}
			if opts.overlay != "" {
				sinks = append(sinks, session.NewOverlay(opts.overlay))
			}

			sess := session.New("cli", cfg, models, advisor, logger)
			loop := session.NewLoop(sess, sinks, logger)

			go readControls(cmd.InOrStdin(), loop, stop)

			if err := loop.Run(runCtx, src); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Replay the images in this directory as camera frames")
	cmd.Flags().StringVar(&opts.snapshotURL, "snapshot-url", "", "Poll this URL for JPEG/PNG snapshots")
	cmd.Flags().DurationVar(&opts.interval, "interval", 100*time.Millisecond, "Delay between frames")
	cmd.Flags().BoolVar(&opts.loop, "loop", false, "Start the directory over when it runs out")
	cmd.Flags().BoolVar(&opts.mirror, "mirror", false, "Flip frames horizontally")
	cmd.Flags().StringVar(&opts.overlay, "overlay", "", "Write the annotated latest frame to this JPEG path")
	cmd.Flags().StringVar(&opts.crop, "crop", "", "Initial crop (rice or wheat)")

	return cmd
}

type loopControl interface {
	TriggerNow()
	SetCrop(crop entity.Crop)
}

// readControls turns operator input into loop commands until r ends or q
// is entered.
func readControls(r io.Reader, ctl loopControl, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch line {
		case "":
			ctl.TriggerNow()
		case "q", "quit", "exit":
			quit()
			return
		default:
			crop, err := entity.ParseCrop(line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "unknown command %q (Enter, rice, wheat or q)\n", line)
				continue
			}
			ctl.SetCrop(crop)
		}
	}
}
