package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeFetcher serves canned descriptor bytes and counts fetches.
type fakeFetcher struct {
	mu      sync.Mutex
	fetches int32
	delay   time.Duration
	data    map[string][]byte
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.fetches, 1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[url]
	if !ok {
		return nil, Terminal(fmt.Errorf("%w: %s", ErrNotFound, url))
	}
	return data, nil
}

func (f *fakeFetcher) FetchRange(ctx context.Context, url string, offset, length int64) ([]byte, error) {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(data)) {
		return nil, Terminal(fmt.Errorf("range start %d beyond size %d", offset, len(data)))
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

func validDescriptor(url string) []byte {
	return []byte(fmt.Sprintf(`{"size":1000000,"pageSize":4096,"chunkSize":65536,"url":%q,"chunkCount":16,"version":1}`, url))
}

func newTestResolver(fetcher Fetcher) *Resolver {
	logger := zap.NewNop().Sugar()
	r := NewRetrier(testTimeouts(), logger)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return NewResolver(fetcher, r, logger)
}

func TestResolveCachesIdentity(t *testing.T) {
	url := "https://example.com/db.sqlite"
	fetcher := &fakeFetcher{data: map[string][]byte{
		url + DescriptorSuffix: validDescriptor(url),
	}}
	resolver := newTestResolver(fetcher)

	first, err := resolver.Resolve(context.Background(), url)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	second, err := resolver.Resolve(context.Background(), url)
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}

	if first != second {
		t.Fatalf("expected identical identities, got %+v and %+v", first, second)
	}
	if n := atomic.LoadInt32(&fetcher.fetches); n != 1 {
		t.Fatalf("expected a single descriptor fetch, got %d", n)
	}
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	url := "https://example.com/db.sqlite"
	fetcher := &fakeFetcher{
		delay: 50 * time.Millisecond,
		data: map[string][]byte{
			url + DescriptorSuffix: validDescriptor(url),
		},
	}
	resolver := newTestResolver(fetcher)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = resolver.Resolve(context.Background(), url)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d returned error: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&fetcher.fetches); n != 1 {
		t.Fatalf("expected one coalesced descriptor fetch, got %d", n)
	}
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	url := "https://example.com/db.sqlite"
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	resolver := newTestResolver(fetcher)

	if _, err := resolver.Resolve(context.Background(), url); err == nil {
		t.Fatal("expected resolve failure")
	} else if !errors.Is(err, ErrMetadataUnavailable) {
		t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
	}

	// The next call should try the network again and succeed.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.data = map[string][]byte{url + DescriptorSuffix: validDescriptor(url)}
	fetcher.mu.Unlock()

	if _, err := resolver.Resolve(context.Background(), url); err != nil {
		t.Fatalf("expected resolve to recover, got %v", err)
	}
}

func TestResolveMissingDescriptorIsMetadataFailure(t *testing.T) {
	// No data at all: the descriptor fetch 404s terminally.
	fetcher := &fakeFetcher{}
	resolver := newTestResolver(fetcher)

	_, err := resolver.Resolve(context.Background(), "https://example.com/db.sqlite")
	if !errors.Is(err, ErrMetadataUnavailable) {
		t.Fatalf("missing descriptor must surface as ErrMetadataUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("underlying ErrNotFound must stay in the chain, got %v", err)
	}
	if !IsTerminal(err) {
		t.Fatalf("missing descriptor must stay terminal, got %v", err)
	}
	if n := atomic.LoadInt32(&fetcher.fetches); n != 1 {
		t.Fatalf("404 must not be retried, got %d fetches", n)
	}
}

func TestResolveSurfacesMalformedDescriptorWithoutRetry(t *testing.T) {
	url := "https://example.com/db.sqlite"
	fetcher := &fakeFetcher{data: map[string][]byte{
		url + DescriptorSuffix: []byte(`not json`),
	}}
	resolver := newTestResolver(fetcher)

	_, err := resolver.Resolve(context.Background(), url)
	if !errors.Is(err, ErrMetadataUnavailable) {
		t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&fetcher.fetches); n != 1 {
		t.Fatalf("malformed descriptor must not be retried, got %d fetches", n)
	}
}
