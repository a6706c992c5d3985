package main

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/logging"
	"github.com/chunklite/chunklite/internal/progress"
	"github.com/chunklite/chunklite/internal/remote"
)

func newFetchCmd() *cobra.Command {
	var (
		output     string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download an entire remote database file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Database.URL = url

			logger, err := logging.New(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			dst := output
			if dst == "" {
				dst = path.Base(url)
				if dst == "" || dst == "." || dst == "/" {
					dst = "database.db"
				}
			}

			fetcher := remote.NewHTTPFetcher()
			retrier := remote.NewRetrier(cfg.Timeouts, logger)
			resolver := remote.NewResolver(fetcher, retrier, logger)
			tracker := progress.NewTracker(0)

			ctx := context.Background()

			// Descriptor is optional here; without it the download is a
			// single fetch with unknown total.
			var total int64
			if id, rerr := resolver.Resolve(ctx, url); rerr == nil {
				total = id.TotalSize
			}

			var bar *progressBar
			if !noProgress {
				bar = newProgressBar("Downloading", cmd.ErrOrStderr())
				detach := tracker.Subscribe(bar.observe)
				defer detach()
			}

			f, err := os.Create(dst)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", dst, err)
			}

			err = remote.Download(ctx, fetcher, retrier, tracker, remote.TierBulkFetch, url, total, cfg.Database.RequestChunkSize, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if bar != nil {
				bar.stop()
			}
			if err != nil {
				_ = os.Remove(dst)
				return err
			}

			snap := tracker.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d bytes to %s\n", snap.BytesLoaded, dst)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (defaults to the URL base name)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the transfer progress bar")

	return cmd
}
