package main

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"fireeye-analysis/internal/config"
	"fireeye-analysis/internal/logging"
)

type commandContext struct {
	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

func (c *commandContext) ensure() (*config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger = cfg, logger
	})
	return c.config, c.logger, c.err
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "fireeye-analysis",
		Short:         "FireEye AX dynamic analysis API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := ctx.ensure()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newUserCommand(ctx))

	return rootCmd
}
