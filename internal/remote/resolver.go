package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Resolver fetches and parses suffix descriptors. Resolution is idempotent
// per URL: successful identities are cached, and concurrent calls for the
// same URL coalesce into one network fetch.
type Resolver struct {
	fetcher Fetcher
	retrier *Retrier
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	resolved map[string]Identity
	inflight map[string]*resolution
}

type resolution struct {
	done chan struct{}
	id   Identity
	err  error
}

// NewResolver creates a Resolver.
func NewResolver(fetcher Fetcher, retrier *Retrier, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		retrier:  retrier,
		logger:   logger,
		resolved: make(map[string]Identity),
		inflight: make(map[string]*resolution),
	}
}

// Resolve returns the identity of the database at url, fetching its suffix
// descriptor at the engine-init tier if it is not already known. Failed
// resolutions are shared with concurrent waiters but never cached.
func (r *Resolver) Resolve(ctx context.Context, url string) (Identity, error) {
	r.mu.Lock()
	if id, ok := r.resolved[url]; ok {
		r.mu.Unlock()
		return id, nil
	}
	if res, ok := r.inflight[url]; ok {
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		case <-res.done:
			return res.id, res.err
		}
	}

	res := &resolution{done: make(chan struct{})}
	r.inflight[url] = res
	r.mu.Unlock()

	res.id, res.err = r.fetch(ctx, url)

	r.mu.Lock()
	delete(r.inflight, url)
	if res.err == nil {
		r.resolved[url] = res.id
	}
	r.mu.Unlock()
	close(res.done)

	return res.id, res.err
}

func (r *Resolver) fetch(ctx context.Context, url string) (Identity, error) {
	descriptorURL := url + DescriptorSuffix

	var id Identity
	err := r.retrier.Execute(ctx, TierEngineInit, "resolve metadata", func(ctx context.Context) error {
		data, err := r.fetcher.Fetch(ctx, descriptorURL)
		if err != nil {
			return err
		}
		desc, err := ParseDescriptor(data)
		if err != nil {
			return err
		}
		id = desc.Identity(url)
		return nil
	})
	if err != nil {
		// Every resolution failure is a metadata failure, including terminal
		// ones like a missing descriptor; callers distinguish descriptor
		// problems from transport problems by this sentinel. Wrapping keeps
		// the terminal marker intact.
		if errors.Is(err, ErrMetadataUnavailable) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}

	r.logger.Infow("resolved database identity",
		"url", id.URL,
		"size", id.TotalSize,
		"chunkSize", id.ChunkSize,
		"chunkCount", id.ChunkCount,
	)
	return id, nil
}
