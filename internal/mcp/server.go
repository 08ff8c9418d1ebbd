package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/seekr-dev/codeseek/internal/indexer"
	"github.com/seekr-dev/codeseek/internal/query"
	"github.com/seekr-dev/codeseek/internal/store"
)

const (
	// ServerName is the MCP server name
	ServerName = "codeseek"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes the engine's operations as MCP tools over stdio:
// index_repository, get_indexing_status, query and
// list_indexed_repositories. All operations are request/response; indexing
// runs in the background and status is polled, not pushed.
type Server struct {
	mcp     *server.MCPServer
	indexer *indexer.Indexer
	engine  *query.Engine
	store   store.Store
	log     zerolog.Logger

	// runCtx outlives individual tool requests so background indexing
	// runs are cancelled by server shutdown, not by the request ending.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// NewServer creates an MCP server wired to the engine components
func NewServer(idx *indexer.Indexer, engine *query.Engine, st store.Store, log zerolog.Logger) *Server {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		indexer:   idx,
		engine:    engine,
		store:     st,
		log:       log.With().Str("component", "mcp").Logger(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.cancelRun()
	go func() {
		<-ctx.Done()
		s.cancelRun()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers the four exposed operations
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(getIndexingStatusTool(), s.handleGetIndexingStatus)
	s.mcp.AddTool(queryTool(), s.handleQuery)
	s.mcp.AddTool(listIndexedRepositoriesTool(), s.handleListIndexedRepositories)
}
