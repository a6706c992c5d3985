package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/chunklite/chunklite/internal/progress"
)

// Download retrieves an entire remote object into w at the given tier. When
// the total size is known it downloads in chunkSize ranges so the tracker
// sees steady progress; otherwise it falls back to a single full fetch.
// Each range is retried independently, so a transient failure late in a
// large transfer does not restart it.
func Download(ctx context.Context, f Fetcher, r *Retrier, tracker *progress.Tracker, tier Tier, url string, total int64, chunkSize int, w io.Writer) error {
	if total <= 0 || chunkSize <= 0 {
		var body []byte
		err := r.Execute(ctx, tier, "download file", func(ctx context.Context) error {
			b, err := f.Fetch(ctx, url)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
		if err != nil {
			return err
		}
		if tracker != nil {
			tracker.SetTotal(int64(len(body)))
		}
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("failed to write download: %w", err)
		}
		if tracker != nil {
			tracker.OnBytes(int64(len(body)))
		}
		return nil
	}

	if tracker != nil {
		tracker.SetTotal(total)
	}

	for offset := int64(0); offset < total; offset += int64(chunkSize) {
		length := int64(chunkSize)
		if offset+length > total {
			length = total - offset
		}

		var part []byte
		err := r.Execute(ctx, tier, fmt.Sprintf("download range @%d", offset), func(ctx context.Context) error {
			b, err := f.FetchRange(ctx, url, offset, length)
			if err != nil {
				return err
			}
			if int64(len(b)) != length {
				return fmt.Errorf("short range read: want %d bytes at %d, got %d", length, offset, len(b))
			}
			part = b
			return nil
		})
		if err != nil {
			return err
		}

		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("failed to write download: %w", err)
		}
		if tracker != nil {
			tracker.OnBytes(length)
		}
	}
	return nil
}
