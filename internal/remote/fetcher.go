package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher retrieves remote objects. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	// Fetch retrieves an entire object.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// FetchRange retrieves the byte range [offset, offset+length).
	FetchRange(ctx context.Context, url string, offset, length int64) ([]byte, error)
}

// HTTPFetcher fetches objects over plain HTTP(S) using Range requests for
// chunk reads. Deadlines come from the per-attempt context supplied by the
// Retrier, so the client itself carries no timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher backed by a dedicated client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Terminal(fmt.Errorf("failed to create request for %s: %w", url, err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp, url); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	return body, nil
}

func (f *HTTPFetcher) FetchRange(ctx context.Context, url string, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, Terminal(fmt.Errorf("invalid range length %d for %s", length, url))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Terminal(fmt.Errorf("failed to create request for %s: %w", url, err))
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp, url); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading range body of %s: %w", url, err)
	}

	// A server that ignores Range replies 200 with the whole object; slice
	// out the requested window locally.
	if resp.StatusCode == http.StatusOK && int64(len(body)) > length {
		if offset >= int64(len(body)) {
			return nil, Terminal(fmt.Errorf("range start %d beyond object size %d for %s", offset, len(body), url))
		}
		end := offset + length
		if end > int64(len(body)) {
			end = int64(len(body))
		}
		body = body[offset:end]
	}

	return body, nil
}

func checkStatus(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return Terminal(fmt.Errorf("%w: %s", ErrNotFound, url))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client errors will not heal on retry.
		return Terminal(fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode))
	default:
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
}
