// Package mcp exposes the indexing and query operations as MCP tools over
// stdio for the surrounding application.
package mcp
