package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/telemetry"
)

func newSlowlogCmd() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "slowlog",
		Short: "Show recently recorded slow queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := telemetry.Open(config.GetTelemetryDBPath())
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			queries, err := store.RecentSlowQueries(context.Background(), limit)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputSlowlogJSON(cmd, queries)
			case "table":
				outputSlowlogTable(cmd, queries)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

type slowlogEntry struct {
	URL        string `json:"url"`
	Query      string `json:"query"`
	Params     string `json:"params,omitempty"`
	DurationMS int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

func outputSlowlogJSON(cmd *cobra.Command, queries []telemetry.SlowQuery) error {
	entries := make([]slowlogEntry, 0, len(queries))
	for _, q := range queries {
		entries = append(entries, slowlogEntry{
			URL:        q.URL,
			Query:      q.Query,
			Params:     q.Params,
			DurationMS: q.DurationMS,
			CreatedAt:  q.CreatedAt.Format(time.RFC3339),
		})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func outputSlowlogTable(cmd *cobra.Command, queries []telemetry.SlowQuery) {
	if len(queries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No slow queries recorded")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"When", "Duration", "URL", "Query"})
	for _, q := range queries {
		t.AppendRow(table.Row{
			q.CreatedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%dms", q.DurationMS),
			q.URL,
			q.Query,
		})
	}
	t.Render()
}
