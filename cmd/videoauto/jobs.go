package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/shy020501/Video-Automation/internal/dataset"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var unusedOnly bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List dataset entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.load()
			if err != nil {
				return err
			}
			store, err := dataset.Load(cfg.DatasetPath(), logger)
			if err != nil {
				return err
			}

			var rows [][]string
			for i, e := range store.Entries() {
				if unusedOnly && e.Used {
					continue
				}
				used := "no"
				if e.Used {
					used = "yes"
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), e.Job, strings.Join(e.Animals, ", "), used})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "No jobs in %s\n", cfg.DatasetPath())
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Job", "Animals", "Used"}, rows, []text.Align{text.AlignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unusedOnly, "unused", false, "Only show jobs that have not been used")
	return cmd
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(aligns))
	for i, a := range aligns {
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: a, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
