package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
	"github.com/shy020501/Video-Automation/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var job string
	var stagesFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := models.ParseStages(stagesFlag)
			if err != nil {
				return err
			}
			cfg, logger, err := ctx.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(stages); err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var ledger worker.Ledger
			database, err := openLedger(runCtx, cfg)
			if err != nil {
				logger.Warn("run ledger unavailable, continuing without it", zap.Error(err))
			} else if database != nil {
				defer database.Close()
				ledger = database
			}

			w := worker.New(buildPipeline(cfg, logger), nil, ledger, logger.Named("worker"))
			res, err := w.RunNow(runCtx, job, stages)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job:    %s\n", res.Job)
			for _, v := range res.Videos {
				fmt.Fprintf(out, "clip:   %s\n", v)
			}
			if res.FinalPath != "" {
				fmt.Fprintf(out, "final:  %s\n", res.FinalPath)
			}
			if res.VideoID != "" {
				fmt.Fprintf(out, "video:  https://youtube.com/shorts/%s\n", res.VideoID)
			}
			if res.ArchiveURL != "" {
				fmt.Fprintf(out, "archive: %s\n", res.ArchiveURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&job, "job", "", "Job to render (default: random unused job)")
	cmd.Flags().StringVar(&stagesFlag, "stages", "media,compose,music,upload", "Comma-separated stages: media, compose, music, upload, archive, or all")
	return cmd
}
