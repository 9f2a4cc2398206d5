package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shy020501/Video-Automation/internal/models"
	"github.com/shy020501/Video-Automation/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var job string
	var stagesFlag string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a run for the serve worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := models.ParseStages(stagesFlag)
			if err != nil {
				return err
			}
			cfg, _, err := ctx.load()
			if err != nil {
				return err
			}

			q, err := queue.New(cfg.RedisURL)
			if err != nil {
				return err
			}
			defer q.Close()

			req := &models.RunRequest{ID: uuid.New(), Job: job, Stages: stages.String()}

			database, err := openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if database != nil {
				defer database.Close()
				run := &models.Run{ID: req.ID, Job: job, Stages: req.Stages, Status: models.RunStatusQueued}
				if err := database.CreateRun(cmd.Context(), run); err != nil {
					return fmt.Errorf("record run: %w", err)
				}
			}

			if err := q.Enqueue(cmd.Context(), req); err != nil {
				return err
			}
			depth, err := q.Len(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "queued run %s\n", req.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued run %s (%d waiting)\n", req.ID, depth)
			return nil
		},
	}

	cmd.Flags().StringVar(&job, "job", "", "Job to render (default: random unused job)")
	cmd.Flags().StringVar(&stagesFlag, "stages", "media,compose,music,upload", "Comma-separated stages")
	return cmd
}
