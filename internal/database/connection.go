// Package database owns the query-engine lifecycle for one remote database:
// connection state, serialized query execution, and the query-result cache.
package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	sqlitevfs "modernc.org/sqlite/vfs"

	"github.com/chunklite/chunklite/internal/chunk"
	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/logging"
	"github.com/chunklite/chunklite/internal/progress"
	"github.com/chunklite/chunklite/internal/remote"
	"github.com/chunklite/chunklite/internal/telemetry"
)

// remoteFileName is the name the chunked database is served under inside
// the VFS filesystem.
const remoteFileName = "remote.db"

// State is the connection lifecycle state. Transitions are monotonic except
// Failed -> Initializing on a fresh Acquire.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deps are the injectable collaborators of a Manager. Zero values get
// production defaults; tests swap in fakes.
type Deps struct {
	Logger    *zap.SugaredLogger
	Fetcher   remote.Fetcher
	Telemetry *telemetry.Store
}

// Manager owns the single query-engine instance for one database identity.
// It arbitrates initialization so the expensive startup sequence runs at
// most once regardless of concurrent callers.
type Manager struct {
	cfg      config.Config
	logger   *zap.SugaredLogger
	fetcher  remote.Fetcher
	retrier  *remote.Retrier
	resolver *remote.Resolver
	tele     *telemetry.Store
	tracker  *progress.Tracker

	mu       sync.Mutex
	state    State
	conn     *Connection
	initErr  error
	inflight chan struct{}
}

// NewManager creates a Manager for the database described by cfg.
func NewManager(cfg config.Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = remote.NewHTTPFetcher()
	}
	retrier := remote.NewRetrier(cfg.Timeouts, logger)

	return &Manager{
		cfg:      cfg,
		logger:   logger,
		fetcher:  fetcher,
		retrier:  retrier,
		resolver: remote.NewResolver(fetcher, retrier, logger),
		tele:     deps.Telemetry,
		tracker:  progress.NewTracker(0),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SubscribeProgress attaches fn to transfer progress events and returns a
// detach function. Subscribers never influence the transfer itself.
func (m *Manager) SubscribeProgress(fn progress.Subscriber) func() {
	return m.tracker.Subscribe(fn)
}

// Progress returns the current transfer snapshot.
func (m *Manager) Progress() progress.Snapshot {
	return m.tracker.Snapshot()
}

// Acquire returns the ready connection, performing engine startup if needed.
// Callers arriving during initialization wait on the same in-flight startup
// and receive its outcome. A Manager left in Failed retries startup on the
// next fresh Acquire; a closed Manager always returns ErrClosed.
func (m *Manager) Acquire(ctx context.Context) (*Connection, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case StateReady:
			conn := m.conn
			m.mu.Unlock()
			return conn, nil

		case StateClosed:
			m.mu.Unlock()
			return nil, ErrClosed

		case StateInitializing:
			ch := m.inflight
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ch:
			}
			m.mu.Lock()
			switch m.state {
			case StateReady:
				conn := m.conn
				m.mu.Unlock()
				return conn, nil
			case StateFailed:
				err := m.initErr
				m.mu.Unlock()
				return nil, err
			default:
				m.mu.Unlock()
				continue
			}

		default: // StateUninitialized, StateFailed
			ch := make(chan struct{})
			m.inflight = ch
			m.state = StateInitializing
			m.mu.Unlock()

			conn, err := m.initialize(ctx)

			m.mu.Lock()
			if m.state == StateClosed {
				// Closed while initializing; discard the fresh engine.
				m.mu.Unlock()
				close(ch)
				if conn != nil {
					_ = conn.close()
				}
				return nil, ErrClosed
			}
			if err != nil {
				m.state = StateFailed
				m.initErr = err
			} else {
				m.state = StateReady
				m.conn = conn
				m.initErr = nil
			}
			m.mu.Unlock()
			close(ch)

			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
}

// Close moves the connection to its terminal Closed state, releases the
// engine, and invalidates all cache entries scoped to it.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	if conn != nil {
		return conn.close()
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context) (*Connection, error) {
	start := time.Now()

	connCtx, cancel := context.WithCancel(context.Background())
	conn, err := m.openConnection(ctx, connCtx)
	if err != nil {
		cancel()
		m.logger.Errorw("engine initialization failed",
			"url", m.cfg.Database.URL,
			"elapsed", time.Since(start),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", remote.ErrEngineInitFailed, err)
	}

	conn.cancel = cancel
	conn.wg.Add(1)
	go conn.worker()

	m.logger.Infow("engine ready",
		"url", m.cfg.Database.URL,
		"mode", m.cfg.Database.ServerMode,
		"elapsed", time.Since(start),
	)
	return conn, nil
}

// openConnection builds the engine for the configured source and mode.
func (m *Manager) openConnection(ctx context.Context, connCtx context.Context) (*Connection, error) {
	conn := &Connection{
		url:           m.cfg.Database.URL,
		cache:         newQueryCache(m.cfg.Cache.QueryTTL),
		retrier:       m.retrier,
		logger:        m.logger,
		tele:          m.tele,
		slowThreshold: m.cfg.Cache.SlowQueryThreshold,
		execCh:        make(chan *execRequest),
		done:          make(chan struct{}),
	}

	if m.cfg.Database.Source == config.SourceLocal {
		if err := m.openLocal(ctx, conn, m.cfg.Database.URL); err != nil {
			return nil, err
		}
		return conn, nil
	}

	if m.cfg.Database.ServerMode == config.ModePartial {
		err := m.openPartial(ctx, connCtx, conn)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, remote.ErrMetadataUnavailable) {
			return nil, err
		}
		// Last resort: pull the whole file down. The emergency tier gets
		// the largest timeout so this attempt is not cut off prematurely.
		m.logger.Warnw("partial-mode startup failed, falling back to full download",
			"url", m.cfg.Database.URL,
			"error", err,
		)
		if err := m.openFull(ctx, conn, remote.TierEmergency); err != nil {
			return nil, err
		}
		return conn, nil
	}

	if err := m.openFull(ctx, conn, remote.TierBulkFetch); err != nil {
		return nil, err
	}
	return conn, nil
}

// openPartial wires the chunk store behind a SQLite VFS so the engine reads
// pages straight out of the cache, pulling missing chunks over the network.
func (m *Manager) openPartial(ctx context.Context, connCtx context.Context, conn *Connection) error {
	id, err := m.resolver.Resolve(ctx, m.cfg.Database.URL)
	if err != nil {
		return err
	}
	m.tracker.SetTotal(id.TotalSize)

	store := chunk.NewStore(id, m.fetcher, m.retrier, m.tracker, m.logger, m.cfg.Cache.ChunkBudgetBytes)
	reader := chunk.NewReader(connCtx, store)
	fsys := chunk.NewFS(reader, remoteFileName)

	vfsName, vfsHandle, err := sqlitevfs.New(fsys)
	if err != nil {
		return fmt.Errorf("failed to register vfs: %w", err)
	}

	eng, err := openEngine(fmt.Sprintf("file:%s?vfs=%s&mode=ro", remoteFileName, vfsName))
	if err != nil {
		_ = vfsHandle.Close()
		return err
	}

	// Ping reads the database header, which exercises the whole fetch path.
	if err := m.retrier.Execute(ctx, remote.TierEngineInit, "open engine", func(ctx context.Context) error {
		return eng.Ping(ctx)
	}); err != nil {
		_ = eng.Close()
		_ = vfsHandle.Close()
		store.Purge()
		return err
	}

	conn.identity = id
	conn.engine = eng
	conn.store = store
	conn.vfsClose = vfsHandle.Close
	return nil
}

// openFull downloads the entire file into the cache directory and opens it
// directly, bypassing chunking. Used for small databases and as the
// emergency fallback. A cached copy is reused only while its size still
// matches the descriptor; on mismatch the remote file has changed and the
// copy is re-downloaded rather than served stale.
func (m *Manager) openFull(ctx context.Context, conn *Connection, tier remote.Tier) error {
	url := m.cfg.Database.URL
	cachePath := filepath.Join(config.GetCacheDir(), cacheFileName(url))

	// The descriptor is optional for full downloads; it validates the cached
	// copy, improves progress reporting, and lets the transfer run per range.
	var total int64
	if id, err := m.resolver.Resolve(ctx, url); err == nil {
		total = id.TotalSize
	}

	fi, err := os.Stat(cachePath)
	fresh := err == nil && fi.Size() > 0 && (total == 0 || fi.Size() == total)
	if fresh {
		m.logger.Debugw("reusing cached download", "url", url, "path", cachePath)
	} else {
		if err == nil && fi.Size() > 0 {
			m.logger.Infow("cached download is stale, re-downloading",
				"url", url,
				"cachedSize", fi.Size(),
				"remoteSize", total,
			)
		}
		if err := m.download(ctx, url, cachePath, tier, total); err != nil {
			return err
		}
	}

	return m.openLocal(ctx, conn, cachePath)
}

func (m *Manager) download(ctx context.Context, url, cachePath string, tier remote.Tier, total int64) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cachePath), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	start := time.Now()
	err = remote.Download(ctx, m.fetcher, m.retrier, m.tracker, tier, url, total, m.cfg.Database.RequestChunkSize, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	if m.tele != nil {
		snap := m.tracker.Snapshot()
		if err := m.tele.RecordTransfer(ctx, url, snap.BytesLoaded, time.Since(start)); err != nil {
			m.logger.Warnw("failed to record transfer", "error", err)
		}
	}
	return nil
}

func (m *Manager) openLocal(ctx context.Context, conn *Connection, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}

	eng, err := openEngine(fmt.Sprintf("file:%s?mode=ro", filepath.ToSlash(absPath)))
	if err != nil {
		return err
	}
	if err := m.retrier.Execute(ctx, remote.TierEngineInit, "open engine", func(ctx context.Context) error {
		return eng.Ping(ctx)
	}); err != nil {
		_ = eng.Close()
		return err
	}

	conn.engine = eng
	return nil
}

func cacheFileName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8]) + ".db"
}

// Connection is a ready engine bound to one database identity. All query
// executions are queued and run one at a time in submission order; the
// embedded engine instance is not reentrant.
type Connection struct {
	url           string
	identity      remote.Identity
	engine        *engine
	store         *chunk.Store
	cache         *queryCache
	vfsClose      func() error
	retrier       *remote.Retrier
	logger        *zap.SugaredLogger
	tele          *telemetry.Store
	slowThreshold time.Duration

	cancel    context.CancelFunc
	execCh    chan *execRequest
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type execRequest struct {
	ctx   context.Context
	query string
	args  []any
	reply chan execResult
}

type execResult struct {
	rows     *Rows
	duration time.Duration
	err      error
}

// Identity returns the resolved database identity. It is the zero value for
// local and fully downloaded databases.
func (c *Connection) Identity() remote.Identity { return c.identity }

// ChunkStats reports chunk-cache counters, or the zero value when the
// connection does not run in partial mode.
func (c *Connection) ChunkStats() chunk.Stats {
	if c.store == nil {
		return chunk.Stats{}
	}
	return c.store.Stats()
}

// Run executes a query, serving it from the result cache when a fresh entry
// exists. On a miss the request queues behind earlier submissions and runs
// at the query-execution tier.
func (c *Connection) Run(ctx context.Context, query string, params Params) (*Rows, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	normQuery, args, err := params.normalize(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", remote.ErrQueryExecutionFailed, err)
	}

	key := cacheKey(normQuery, args)
	if rows, ok := c.cache.get(key); ok {
		c.logger.Debugw("query cache hit", "query", normalizeText(normQuery))
		return rows, nil
	}

	req := &execRequest{ctx: ctx, query: normQuery, args: args, reply: make(chan execResult, 1)}
	select {
	case c.execCh <- req:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var res execResult
	select {
	case res = <-req.reply:
	case <-c.done:
		return nil, ErrClosed
	}

	if res.err != nil {
		return nil, fmt.Errorf("%w: %w", remote.ErrQueryExecutionFailed, res.err)
	}

	c.cache.put(key, res.rows)
	c.observeDuration(ctx, normQuery, args, res.duration)
	return res.rows, nil
}

func (c *Connection) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.execCh:
			start := time.Now()
			rows, err := c.execute(req.ctx, req.query, req.args)
			req.reply <- execResult{rows: rows, duration: time.Since(start), err: err}
		}
	}
}

func (c *Connection) execute(ctx context.Context, query string, args []any) (*Rows, error) {
	var rows *Rows
	err := c.retrier.Execute(ctx, remote.TierQueryExec, "execute query", func(ctx context.Context) error {
		rs, err := c.engine.Execute(ctx, query, args)
		if err != nil {
			return classifyEngineError(err)
		}
		rows = rs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Connection) observeDuration(ctx context.Context, query string, args []any, duration time.Duration) {
	if duration <= c.slowThreshold {
		return
	}

	paramsJSON, _ := json.Marshal(args)
	c.logger.Warnw("slow query",
		"query", normalizeText(query),
		"params", string(paramsJSON),
		"duration", duration,
	)
	if c.tele != nil {
		if err := c.tele.RecordSlowQuery(ctx, c.url, normalizeText(query), string(paramsJSON), duration); err != nil {
			c.logger.Warnw("failed to record slow query", "error", err)
		}
	}
}

func (c *Connection) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		c.cache.purge()
		if c.store != nil {
			c.store.Purge()
		}
		if c.engine != nil {
			err = c.engine.Close()
		}
		if c.vfsClose != nil {
			if verr := c.vfsClose(); err == nil {
				err = verr
			}
		}
	})
	return err
}

// classifyEngineError decides whether an engine failure is worth retrying.
// Chunk-layer failures surface from the VFS as SQLite I/O errors; anything
// else (syntax, missing table, type mismatch) is deterministic and terminal.
func classifyEngineError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "i/o error") || strings.Contains(msg, "interrupted") {
		return err
	}
	return remote.Terminal(err)
}
