package types

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// ChunkType classifies how a chunk was carved out of its file
type ChunkType string

const (
	ChunkFunction       ChunkType = "function"
	ChunkClass          ChunkType = "class"
	ChunkModuleFragment ChunkType = "module-fragment"
	ChunkOther          ChunkType = "other"
)

// TokensPerChar is the heuristic divisor for estimating tokens (chars/4).
// Intentionally approximate; callers must leave headroom for estimation error.
const TokensPerChar = 4

// EstimateTokens approximates the token count of text using the chars/4
// heuristic. The same estimator is shared by the chunker and the embedding
// adapter so truncation decisions are consistent.
func EstimateTokens(text string) int {
	return len(text) / TokensPerChar
}

// RepoKey identifies one indexed repository branch
type RepoKey struct {
	Owner  string
	Repo   string
	Branch string
}

// Validate checks the key has all components
func (k RepoKey) Validate() error {
	if k.Owner == "" || k.Repo == "" || k.Branch == "" {
		return errors.New("owner, repo and branch are required")
	}
	return nil
}

func (k RepoKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Owner, k.Repo, k.Branch)
}

// Chunk is a token-bounded slice of a source file, the unit of embedding
// and retrieval. Identity is (owner, repo, branch, file_path, chunk_index);
// re-indexing a repository replaces all of its chunks, never mutates them.
type Chunk struct {
	// Identity
	Owner      string
	Repo       string
	Branch     string
	FilePath   string
	ChunkIndex int

	// Content
	Content     string
	Context     string // Enclosing header: imports, signature lines
	ContentHash [32]byte
	TokenCount  int

	// Metadata
	Language  string
	ChunkType ChunkType
	ChunkName string // Best-effort symbol name, empty when unknown
	StartLine int
	EndLine   int

	// Embedding
	Embedding []float32
	ModelTag  string // Embedding model that produced the vector
}

// Key returns the repository key this chunk belongs to
func (c *Chunk) Key() RepoKey {
	return RepoKey{Owner: c.Owner, Repo: c.Repo, Branch: c.Branch}
}

// EmbedText returns the text sent to the embedding provider: the context
// header followed by the chunk body.
func (c *Chunk) EmbedText() string {
	if c.Context == "" {
		return c.Content
	}
	return c.Context + "\n\n" + c.Content
}

// ComputeTokenCount estimates and records the token count of the embed text
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = EstimateTokens(c.EmbedText())
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the embed text. The hash
// keys the embedding cache, so it must cover everything the provider sees.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.EmbedText()))
}

// Validate performs validation of chunk identity and content
func (c *Chunk) Validate() error {
	if err := c.Key().Validate(); err != nil {
		return err
	}
	if c.FilePath == "" {
		return errors.New("file path is required")
	}
	if c.ChunkIndex < 0 {
		return errors.New("chunk index must be non-negative")
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.StartLine <= 0 || c.EndLine < c.StartLine {
		return errors.New("invalid line range")
	}
	switch c.ChunkType {
	case ChunkFunction, ChunkClass, ChunkModuleFragment, ChunkOther:
	default:
		return fmt.Errorf("invalid chunk type %q", c.ChunkType)
	}
	var zero [32]byte
	if c.ContentHash == zero {
		return errors.New("content hash must be computed")
	}
	return nil
}

// SourceFile is one file supplied by a repository content source,
// already filtered to non-binary, size-bounded source files.
type SourceFile struct {
	Path     string
	Content  string
	Language string
}
