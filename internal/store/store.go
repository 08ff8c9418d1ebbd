package store

import (
	"context"
	"errors"
	"time"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// Common errors
var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when a vector's dimensionality does
	// not match the store's. Data errors are rejected at this boundary,
	// never silently coerced.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidChunk is returned for malformed chunks
	ErrInvalidChunk = errors.New("invalid chunk")
)

// SearchRequest describes a top-K similarity search. All filter fields are
// optional; empty strings match everything.
type SearchRequest struct {
	Vector    []float32
	TopK      int
	Threshold float64 // Minimum similarity; results below are excluded

	Owner    string
	Repo     string
	Branch   string
	Language string
	ModelTag string // Restrict to chunks embedded by this model
}

// SearchResult pairs a chunk with its similarity to the query vector.
// Similarity is cosine over unit-normalized vectors, range [-1, 1];
// 1 is identical direction. The range is documented here once and used
// consistently so thresholds are meaningful.
type SearchResult struct {
	Chunk      types.Chunk
	Similarity float64
}

// RepositoryInfo summarizes one indexed (owner, repo, branch) key
type RepositoryInfo struct {
	Owner         string
	Repo          string
	Branch        string
	Files         int
	Chunks        int
	ModelTag      string
	LastIndexedAt time.Time
}

// Store persists chunks with their vectors and metadata, and owns the
// indexing job status records.
type Store interface {
	// UpsertChunks writes chunks idempotently per identity tuple
	// (owner, repo, branch, file_path, chunk_index). Vectors with a
	// dimensionality different from the store's are rejected.
	UpsertChunks(ctx context.Context, chunks []types.Chunk) error

	// DeleteRepository removes every chunk for the key. Run before
	// re-indexing so no stale chunks survive renamed or removed files.
	DeleteRepository(ctx context.Context, key types.RepoKey) error

	// Search returns up to TopK chunks ordered by descending similarity,
	// all at or above the threshold. Ties are broken by ascending
	// file path then chunk index for determinism.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)

	// CountChunks returns the number of stored chunks for the key
	CountChunks(ctx context.Context, key types.RepoKey) (int, error)

	// PutJob writes the status record for a key, superseding any prior run
	PutJob(ctx context.Context, job *types.Job) error

	// GetJob reads the latest status record for a key
	GetJob(ctx context.Context, key types.RepoKey) (*types.Job, error)

	// ListRepositories summarizes all indexed keys
	ListRepositories(ctx context.Context) ([]RepositoryInfo, error)

	Close() error
}
