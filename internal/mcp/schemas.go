package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// repoProperties are the identity parameters shared by several tools
func repoProperties() map[string]interface{} {
	return map[string]interface{}{
		"owner": map[string]interface{}{
			"type":        "string",
			"description": "Repository owner",
		},
		"repo": map[string]interface{}{
			"type":        "string",
			"description": "Repository name",
		},
		"branch": map[string]interface{}{
			"type":        "string",
			"description": "Repository branch",
			"default":     "main",
		},
	}
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Start indexing a repository so it becomes searchable. Runs in the background; poll get_indexing_status for progress.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: repoProperties(),
			Required:   []string{"owner", "repo"},
		},
	}
}

// getIndexingStatusTool returns the tool definition for get_indexing_status
func getIndexingStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_indexing_status",
		Description: "Get the status and progress of the latest indexing run for a repository",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: repoProperties(),
			Required:   []string{"owner", "repo"},
		},
	}
}

// queryTool returns the tool definition for query
func queryTool() mcp.Tool {
	props := map[string]interface{}{
		"question": map[string]interface{}{
			"type":        "string",
			"description": "Natural-language question about the indexed code",
		},
		"owner": map[string]interface{}{
			"type":        "string",
			"description": "Restrict retrieval to this owner",
		},
		"repo": map[string]interface{}{
			"type":        "string",
			"description": "Restrict retrieval to this repository",
		},
		"branch": map[string]interface{}{
			"type":        "string",
			"description": "Restrict retrieval to this branch",
		},
		"language": map[string]interface{}{
			"type":        "string",
			"description": "Restrict retrieval to this language (e.g. 'go', 'python')",
		},
		"top_k": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of chunks to retrieve (1-50)",
			"default":     8,
			"minimum":     1,
			"maximum":     50,
		},
		"similarity_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Minimum cosine similarity for a chunk to count as relevant",
		},
	}
	return mcp.Tool{
		Name:        "query",
		Description: "Ask a natural-language question about indexed code and get a grounded, cited answer",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"question"},
		},
	}
}

// listIndexedRepositoriesTool returns the tool definition for
// list_indexed_repositories
func listIndexedRepositoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_indexed_repositories",
		Description: "List all indexed repositories with chunk counts and last index time",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
