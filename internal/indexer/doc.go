// Package indexer orchestrates the indexing pipeline as a state machine:
// pending -> fetching -> chunking -> embedding -> storing -> completed,
// with failed reachable from any non-terminal state. Progress is persisted
// incrementally so callers can poll it mid-run.
package indexer
