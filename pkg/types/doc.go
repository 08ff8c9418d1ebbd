// Package types defines the shared data model for the indexing and
// retrieval engine: code chunks, repository keys, indexing jobs and
// query results.
package types
