package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/seekr-dev/codeseek/internal/indexer"
	"github.com/seekr-dev/codeseek/internal/query"
	"github.com/seekr-dev/codeseek/internal/store"
	"github.com/seekr-dev/codeseek/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal error
	ErrorCodeIndexingInProgress = -32001 // Another run already holds this key
	ErrorCodeNotIndexed         = -32002 // No indexing run recorded for this key
)

// mcpError carries a JSON-RPC style code with the message
type mcpError struct {
	Code    int
	Message string
}

func (e *mcpError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string) error {
	return &mcpError{Code: code, Message: message}
}

// parseRepoKey extracts the repository identity from tool arguments
func parseRepoKey(args map[string]interface{}) (types.RepoKey, error) {
	owner, _ := args["owner"].(string)
	repo, _ := args["repo"].(string)
	branch, _ := args["branch"].(string)
	if branch == "" {
		branch = "main"
	}
	key := types.RepoKey{Owner: owner, Repo: repo, Branch: branch}
	if owner == "" || repo == "" {
		return key, newMCPError(ErrorCodeInvalidParams, "owner and repo parameters are required")
	}
	return key, nil
}

func toolArguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments")
	}
	return args, nil
}

// handleIndexRepository starts a background indexing run and returns
// immediately; callers poll get_indexing_status for progress.
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArguments(request)
	if err != nil {
		return nil, err
	}
	key, err := parseRepoKey(args)
	if err != nil {
		return nil, err
	}

	if s.indexer.InProgress(key) {
		return nil, newMCPError(ErrorCodeIndexingInProgress,
			fmt.Sprintf("indexing already in progress for %s", key.String()))
	}

	go func() {
		if _, err := s.indexer.IndexRepository(s.runCtx, key); err != nil {
			// Lost the race with a run that started after the check above.
			if errors.Is(err, indexer.ErrIndexInProgress) {
				return
			}
			s.log.Error().Str("key", key.String()).Err(err).Msg("background indexing run failed")
		}
	}()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"started": true,
		"owner":   key.Owner,
		"repo":    key.Repo,
		"branch":  key.Branch,
	})), nil
}

// handleGetIndexingStatus returns the latest job record for a key
func (s *Server) handleGetIndexingStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArguments(request)
	if err != nil {
		return nil, err
	}
	key, err := parseRepoKey(args)
	if err != nil {
		return nil, err
	}

	job, err := s.indexer.Status(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newMCPError(ErrorCodeNotIndexed, fmt.Sprintf("no indexing run recorded for %s", key))
		}
		return nil, newMCPError(ErrorCodeInternalError, err.Error())
	}

	return mcp.NewToolResultText(formatJSON(jobResponse(job))), nil
}

// jobResponse shapes a job record for callers
func jobResponse(job *types.Job) map[string]interface{} {
	resp := map[string]interface{}{
		"owner":               job.Owner,
		"repo":                job.Repo,
		"branch":              job.Branch,
		"status":              string(job.Status),
		"total_files":         job.TotalFiles,
		"indexed_files":       job.IndexedFiles,
		"skipped_files":       job.SkippedFiles,
		"total_chunks":        job.TotalChunks,
		"indexed_chunks":      job.IndexedChunks,
		"skipped_chunks":      job.SkippedChunks,
		"progress_percentage": job.Progress(),
		"started_at":          job.StartedAt,
		"duration_ms":         job.Duration().Milliseconds(),
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = *job.CompletedAt
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return resp
}

// handleQuery answers a natural-language question over the index
func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArguments(request)
	if err != nil {
		return nil, err
	}

	question, _ := args["question"].(string)
	if question == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "question parameter is required and cannot be empty")
	}

	scope := query.Scope{}
	scope.Owner, _ = args["owner"].(string)
	scope.Repo, _ = args["repo"].(string)
	scope.Branch, _ = args["branch"].(string)
	scope.Language, _ = args["language"].(string)

	opts := &query.Options{}
	if v, ok := args["top_k"].(float64); ok {
		opts.TopK = int(v)
	}
	if v, ok := args["similarity_threshold"].(float64); ok {
		opts.Threshold = &v
	}

	result, err := s.engine.Answer(ctx, question, scope, opts)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, err.Error())
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListIndexedRepositories lists all indexed keys with statistics
func (s *Server) handleListIndexedRepositories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.store.ListRepositories(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, err.Error())
	}

	repos := make([]map[string]interface{}, 0, len(infos))
	for _, info := range infos {
		repos = append(repos, map[string]interface{}{
			"owner":           info.Owner,
			"repo":            info.Repo,
			"branch":          info.Branch,
			"files":           info.Files,
			"chunks":          info.Chunks,
			"model_tag":       info.ModelTag,
			"last_indexed_at": info.LastIndexedAt,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"repositories": repos,
		"count":        len(repos),
	})), nil
}

// formatJSON renders a response payload as indented JSON text
func formatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(data)
}
