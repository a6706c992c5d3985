package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/database"
	"github.com/chunklite/chunklite/internal/logging"
	"github.com/chunklite/chunklite/internal/telemetry"
)

func newQueryCmd() *cobra.Command {
	var (
		params     []string
		format     string
		mode       string
		chunkSize  int
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "query <url> <sql>",
		Short: "Run a SQL query against a remote database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Database.URL = args[0]
			if mode != "" {
				cfg.Database.ServerMode = mode
			}
			if chunkSize > 0 {
				cfg.Database.RequestChunkSize = chunkSize
			}
			// A path that exists on disk is opened directly.
			if _, statErr := os.Stat(args[0]); statErr == nil {
				cfg.Database.Source = config.SourceLocal
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			var tele *telemetry.Store
			if cfg.Telemetry.Enabled {
				tele, err = telemetry.Open(cfg.Telemetry.DBPath)
				if err != nil {
					logger.Warnw("failed to open telemetry store", "error", err)
					tele = nil
				}
			}
			defer func() {
				_ = tele.Close()
			}()

			mgr := database.NewManager(cfg, database.Deps{Logger: logger, Telemetry: tele})
			defer func() {
				_ = mgr.Close()
			}()

			var bar *progressBar
			if !noProgress && format == "table" {
				bar = newProgressBar("Fetching chunks", cmd.ErrOrStderr())
				detach := mgr.SubscribeProgress(bar.observe)
				defer detach()
			}

			ctx := context.Background()
			conn, err := mgr.Acquire(ctx)
			if err != nil {
				return err
			}

			queryArgs := make([]any, 0, len(params))
			for _, p := range params {
				queryArgs = append(queryArgs, database.ParseValue(p))
			}

			rows, err := conn.Run(ctx, args[1], database.Positional(queryArgs...))
			if bar != nil {
				bar.stop()
			}
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputRowsJSON(cmd, rows)
			case "table":
				outputRowsTable(cmd, rows)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Positional query parameter (repeatable, order matters)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().StringVar(&mode, "mode", "", "Fetch mode: partial or full")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Request chunk size in bytes")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the transfer progress bar")

	return cmd
}

type rowsOutput struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func outputRowsJSON(cmd *cobra.Command, rows *database.Rows) error {
	output := rowsOutput{Columns: rows.Columns, Rows: rows.Values}
	if output.Rows == nil {
		output.Rows = [][]any{}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputRowsTable(cmd *cobra.Command, rows *database.Rows) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())

	header := make(table.Row, 0, len(rows.Columns))
	for _, c := range rows.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)

	for _, row := range rows.Values {
		r := make(table.Row, 0, len(row))
		for _, v := range row {
			r = append(r, formatCell(v))
		}
		t.AppendRow(r)
	}

	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%d row(s)\n", len(rows.Values))
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
