package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hostwatch/internal/config"
	"hostwatch/internal/logger"
	"hostwatch/internal/processor"
)

func serveCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the monitor and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger.Init(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return processor.New(cfg).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	return cmd
}
