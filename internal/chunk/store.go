// Package chunk caches fixed-size byte ranges of a remote database file.
// The store is the buffer pool between the query engine and the network: on
// a hit it returns immediately, on a miss it pulls exactly one chunk range
// through the transport retrier.
package chunk

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chunklite/chunklite/internal/progress"
	"github.com/chunklite/chunklite/internal/remote"
)

// Store is a byte-budget LRU cache of chunks keyed by chunk index. Chunks
// are immutable after insertion; the remote file is read-only for the
// lifetime of a session. At most one fetch is in flight per index: later
// callers for the same missing chunk wait on the first fetch.
type Store struct {
	identity remote.Identity
	fetcher  remote.Fetcher
	retrier  *remote.Retrier
	tracker  *progress.Tracker
	logger   *zap.SugaredLogger
	budget   int64

	mu       sync.Mutex
	entries  map[int]*entry
	order    *list.List
	size     int64
	inflight map[int]*fetchState

	hits   int64
	misses int64
	evicts int64
}

type entry struct {
	index     int
	data      []byte
	fetchedAt time.Time
	elem      *list.Element
}

type fetchState struct {
	done chan struct{}
	data []byte
	err  error
}

// Stats reports cache effectiveness counters.
type Stats struct {
	BudgetBytes int64
	SizeBytes   int64
	Chunks      int
	Hits        int64
	Misses      int64
	Evicts      int64
}

// NewStore creates a chunk store for one database identity. The tracker may
// be nil when nobody observes transfer progress.
func NewStore(id remote.Identity, fetcher remote.Fetcher, retrier *remote.Retrier, tracker *progress.Tracker, logger *zap.SugaredLogger, budget int64) *Store {
	return &Store{
		identity: id,
		fetcher:  fetcher,
		retrier:  retrier,
		tracker:  tracker,
		logger:   logger,
		budget:   budget,
		entries:  make(map[int]*entry),
		order:    list.New(),
		inflight: make(map[int]*fetchState),
	}
}

// Identity returns the database identity this store serves.
func (s *Store) Identity() remote.Identity { return s.identity }

// Get returns the bytes of the chunk at index. A hit returns synchronously
// with no I/O; a miss fetches the chunk range at the bulk-fetch tier.
func (s *Store) Get(ctx context.Context, index int) ([]byte, error) {
	if index < 0 || index >= s.identity.ChunkCount {
		return nil, remote.Terminal(fmt.Errorf("chunk index %d out of range [0, %d)", index, s.identity.ChunkCount))
	}

	s.mu.Lock()
	if e, ok := s.entries[index]; ok {
		s.hits++
		s.order.MoveToFront(e.elem)
		data := e.data
		s.mu.Unlock()
		return data, nil
	}
	s.misses++
	if fs, ok := s.inflight[index]; ok {
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-fs.done:
			return fs.data, fs.err
		}
	}
	fs := &fetchState{done: make(chan struct{})}
	s.inflight[index] = fs
	s.mu.Unlock()

	data, err := s.fetch(ctx, index)

	s.mu.Lock()
	delete(s.inflight, index)
	if err == nil {
		s.insertLocked(index, data)
	}
	s.mu.Unlock()

	fs.data, fs.err = data, err
	close(fs.done)

	if err == nil && s.tracker != nil {
		s.tracker.OnBytes(int64(len(data)))
	}
	return data, err
}

func (s *Store) fetch(ctx context.Context, index int) ([]byte, error) {
	offset, length := s.identity.ChunkRange(index)

	var data []byte
	err := s.retrier.Execute(ctx, remote.TierBulkFetch, fmt.Sprintf("fetch chunk %d", index), func(ctx context.Context) error {
		b, err := s.fetcher.FetchRange(ctx, s.identity.URL, offset, length)
		if err != nil {
			return err
		}
		if int64(len(b)) != length {
			return fmt.Errorf("short chunk %d: want %d bytes, got %d", index, length, len(b))
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d of %s: %w", remote.ErrChunkFetchFailed, index, s.identity.URL, err)
	}
	return data, nil
}

// insertLocked adds a fetched chunk, evicting least-recently-used chunks
// until the byte budget holds. A chunk larger than the whole budget is
// served but not cached.
func (s *Store) insertLocked(index int, data []byte) {
	if int64(len(data)) > s.budget {
		return
	}
	for s.size+int64(len(data)) > s.budget {
		back := s.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*entry)
		s.order.Remove(back)
		delete(s.entries, victim.index)
		s.size -= int64(len(victim.data))
		s.evicts++
	}

	e := &entry{index: index, data: data, fetchedAt: time.Now()}
	e.elem = s.order.PushFront(e)
	s.entries[index] = e
	s.size += int64(len(data))
}

// Contains reports whether the chunk at index is cached, without touching
// recency.
func (s *Store) Contains(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[index]
	return ok
}

// Purge drops every cached chunk. Called when the owning connection closes;
// entries are invalidated, not merely marked stale.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[int]*entry)
	s.order.Init()
	s.size = 0
}

// Stats returns cache counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		BudgetBytes: s.budget,
		SizeBytes:   s.size,
		Chunks:      len(s.entries),
		Hits:        s.hits,
		Misses:      s.misses,
		Evicts:      s.evicts,
	}
}
