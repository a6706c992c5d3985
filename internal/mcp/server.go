// Package mcp exposes chunklite over the Model Context Protocol so agents
// can query remote databases through stdio.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/chunklite/chunklite/internal/config"
	"github.com/chunklite/chunklite/internal/database"
	"github.com/chunklite/chunklite/internal/remote"
	"github.com/chunklite/chunklite/internal/telemetry"
)

// Server wraps the MCP server with chunklite-specific functionality.
type Server struct {
	server *mcp.Server
	cfg    config.Config
	logger *zap.SugaredLogger
	tele   *telemetry.Store

	mu       sync.Mutex
	managers map[string]*database.Manager
}

// NewServer creates a new MCP server instance.
func NewServer(cfg config.Config, logger *zap.SugaredLogger) (*Server, error) {
	var tele *telemetry.Store
	if cfg.Telemetry.Enabled {
		var err error
		tele, err = telemetry.Open(cfg.Telemetry.DBPath)
		if err != nil {
			// Telemetry is best-effort; queries must still work without it.
			logger.Warnw("failed to open telemetry store", "error", err)
			tele = nil
		}
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "chunklite",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server:   mcpServer,
		cfg:      cfg,
		logger:   logger,
		tele:     tele,
		managers: make(map[string]*database.Manager),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.closeAll()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) closeAll() {
	s.mu.Lock()
	managers := s.managers
	s.managers = make(map[string]*database.Manager)
	s.mu.Unlock()

	for url, m := range managers {
		if err := m.Close(); err != nil {
			s.logger.Warnw("failed to close connection", "url", url, "error", err)
		}
	}
	if err := s.tele.Close(); err != nil {
		s.logger.Warnw("failed to close telemetry store", "error", err)
	}
}

// manager returns the Manager for url, creating it on first use. One manager
// per URL keeps the single-engine-per-identity invariant across tools.
func (s *Server) manager(url string, mode *string) *database.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[url]; ok {
		return m
	}

	cfg := s.cfg
	cfg.Database.URL = url
	if mode != nil {
		cfg.Database.ServerMode = *mode
	}

	m := database.NewManager(cfg, database.Deps{
		Logger:    s.logger,
		Telemetry: s.tele,
	})
	s.managers[url] = m
	return m
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "db_query",
		Description: "Run a read-only SQL query against a remote SQLite database",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "db_info",
		Description: "Show the chunking metadata of a remote SQLite database",
	}, s.handleInfo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "db_schema",
		Description: "List tables, views and indexes of a remote SQLite database",
	}, s.handleSchema)
}

// Input/Output types for each tool

type QueryInput struct {
	URL    string   `json:"url" jsonschema:"required,description=URL of the remote database"`
	SQL    string   `json:"sql" jsonschema:"required,description=SQL query to execute"`
	Params []string `json:"params,omitempty" jsonschema:"description=Positional query parameters in order"`
	Mode   *string  `json:"mode,omitempty" jsonschema:"enum=full;partial,description=Fetch mode (partial streams chunks on demand)"`
}

type QueryOutput struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type InfoInput struct {
	URL string `json:"url" jsonschema:"required,description=URL of the remote database"`
}

type InfoOutput struct {
	URL        string `json:"url"`
	Size       int64  `json:"size"`
	PageSize   int    `json:"pageSize"`
	ChunkSize  int    `json:"chunkSize"`
	ChunkCount int    `json:"chunkCount"`
	Version    int    `json:"version"`
}

type SchemaInput struct {
	URL  string  `json:"url" jsonschema:"required,description=URL of the remote database"`
	Mode *string `json:"mode,omitempty" jsonschema:"enum=full;partial,description=Fetch mode"`
}

type SchemaObject struct {
	Name string `json:"name"`
	Type string `json:"type"`
	SQL  string `json:"sql,omitempty"`
}

type SchemaOutput struct {
	Objects []SchemaObject `json:"objects"`
}

// Tool handlers

func (s *Server) handleQuery(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	conn, err := s.manager(input.URL, input.Mode).Acquire(ctx)
	if err != nil {
		return nil, QueryOutput{}, fmt.Errorf("failed to acquire connection: %w", err)
	}

	args := make([]any, 0, len(input.Params))
	for _, p := range input.Params {
		args = append(args, database.ParseValue(p))
	}

	rows, err := conn.Run(ctx, input.SQL, database.Positional(args...))
	if err != nil {
		return nil, QueryOutput{}, fmt.Errorf("failed to run query: %w", err)
	}

	out := QueryOutput{Columns: rows.Columns, Rows: make([][]string, 0, len(rows.Values))}
	for _, row := range rows.Values {
		rendered := make([]string, len(row))
		for i, v := range row {
			rendered[i] = formatValue(v)
		}
		out.Rows = append(out.Rows, rendered)
	}
	return nil, out, nil
}

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest, input InfoInput) (*mcp.CallToolResult, InfoOutput, error) {
	logger := s.logger
	retrier := remote.NewRetrier(s.cfg.Timeouts, logger)
	resolver := remote.NewResolver(remote.NewHTTPFetcher(), retrier, logger)

	id, err := resolver.Resolve(ctx, input.URL)
	if err != nil {
		return nil, InfoOutput{}, fmt.Errorf("failed to resolve metadata: %w", err)
	}

	return nil, InfoOutput{
		URL:        id.URL,
		Size:       id.TotalSize,
		PageSize:   id.PageSize,
		ChunkSize:  id.ChunkSize,
		ChunkCount: id.ChunkCount,
		Version:    id.FormatVersion,
	}, nil
}

func (s *Server) handleSchema(ctx context.Context, req *mcp.CallToolRequest, input SchemaInput) (*mcp.CallToolResult, SchemaOutput, error) {
	conn, err := s.manager(input.URL, input.Mode).Acquire(ctx)
	if err != nil {
		return nil, SchemaOutput{}, fmt.Errorf("failed to acquire connection: %w", err)
	}

	rows, err := conn.Run(ctx,
		`SELECT name, type, COALESCE(sql, '') FROM sqlite_master WHERE type IN ('table', 'view', 'index') ORDER BY type, name`,
		database.Positional())
	if err != nil {
		return nil, SchemaOutput{}, fmt.Errorf("failed to read schema: %w", err)
	}

	out := SchemaOutput{Objects: make([]SchemaObject, 0, len(rows.Values))}
	for _, row := range rows.Values {
		out.Objects = append(out.Objects, SchemaObject{
			Name: formatValue(row[0]),
			Type: formatValue(row[1]),
			SQL:  formatValue(row[2]),
		})
	}
	return nil, out, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
