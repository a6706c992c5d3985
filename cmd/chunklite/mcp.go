package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/logging"
	"github.com/chunklite/chunklite/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server",
		Long:  "Start the Model Context Protocol server exposing remote database tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			server, err := mcp.NewServer(cfg, logger)
			if err != nil {
				return err
			}

			return server.Run(context.Background())
		},
	}

	return cmd
}
