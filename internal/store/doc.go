// Package store persists code chunks with their embedding vectors and
// metadata in SQLite, and serves top-K cosine similarity search with
// metadata filters. It also owns the indexing job status records.
package store
