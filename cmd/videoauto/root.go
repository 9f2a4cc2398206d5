package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/config"
	"github.com/shy020501/Video-Automation/internal/logging"
)

type commandContext struct {
	dataPath   string
	outputPath string
	concept    string

	once   sync.Once
	config *config.Config
	logger *zap.Logger
	err    error
}

// load reads configuration once and applies the path flags over it.
func (c *commandContext) load() (*config.Config, *zap.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.dataPath))
		if err != nil {
			c.err = err
			return
		}
		if c.outputPath != "" {
			cfg.OutputDir = c.outputPath
		}
		if c.concept != "" {
			cfg.Concept = c.concept
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.logger, c.err
}

func (c *commandContext) close() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "videoauto",
		Short:         "Generate and publish animal-job shorts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.dataPath, "data_path", "./data", "Directory holding keys.json and the dataset")
	flags.StringVar(&ctx.outputPath, "output_path", "", "Directory for generated media (default ./output)")
	flags.StringVar(&ctx.concept, "concept", "", "Dataset name, read from <data_path>/<concept>.json (default animal_with_job)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newAuthCommand(ctx))
	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
