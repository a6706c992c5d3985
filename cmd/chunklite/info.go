package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/logging"
	"github.com/chunklite/chunklite/internal/remote"
)

func newInfoCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info <url>",
		Short: "Show the chunking metadata of a remote database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Database.URL = args[0]

			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			retrier := remote.NewRetrier(cfg.Timeouts, logger)
			resolver := remote.NewResolver(remote.NewHTTPFetcher(), retrier, logger)

			id, err := resolver.Resolve(context.Background(), args[0])
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputIdentityJSON(cmd, id)
			case "table":
				outputIdentityTable(cmd, id)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

type identityOutput struct {
	URL        string `json:"url"`
	Size       int64  `json:"size"`
	PageSize   int    `json:"pageSize"`
	ChunkSize  int    `json:"chunkSize"`
	ChunkCount int    `json:"chunkCount"`
	Version    int    `json:"version"`
}

func outputIdentityJSON(cmd *cobra.Command, id remote.Identity) error {
	output := identityOutput{
		URL:        id.URL,
		Size:       id.TotalSize,
		PageSize:   id.PageSize,
		ChunkSize:  id.ChunkSize,
		ChunkCount: id.ChunkCount,
		Version:    id.FormatVersion,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputIdentityTable(cmd *cobra.Command, id remote.Identity) {
	fmt.Fprintf(cmd.OutOrStdout(), "URL:         %s\n", id.URL)
	fmt.Fprintf(cmd.OutOrStdout(), "Size:        %d\n", id.TotalSize)
	fmt.Fprintf(cmd.OutOrStdout(), "Page Size:   %d\n", id.PageSize)
	fmt.Fprintf(cmd.OutOrStdout(), "Chunk Size:  %d\n", id.ChunkSize)
	fmt.Fprintf(cmd.OutOrStdout(), "Chunk Count: %d\n", id.ChunkCount)
	fmt.Fprintf(cmd.OutOrStdout(), "Version:     %d\n", id.FormatVersion)
}
