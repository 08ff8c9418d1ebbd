package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors. ErrRateLimited and ErrPayloadTooLarge are distinguishable
// so the retry policy can treat them differently: rate limits back off,
// oversized payloads are truncated or bisected, never blindly retried.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrProviderFailed  = errors.New("embedding provider failed")
	ErrRateLimited     = errors.New("embedding provider rate limited")
	ErrPayloadTooLarge = errors.New("embedding payload too large")
	ErrUnsupported     = errors.New("unsupported embedding provider")
)

// Provider converts batches of text into fixed-dimensionality vectors,
// one vector per input in the same order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// ComputeHash computes the SHA-256 content hash used as the cache key
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Cache is an in-memory LRU of embeddings keyed by content hash. It is safe
// for concurrent use; hits never reach the provider and so never count
// against rate limits.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates an embedding cache with LRU eviction
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := lru.New[string, []float32](maxEntries)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so caller mutations cannot
// pollute the cache
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector under its content hash
func (c *Cache) Set(hash string, vector []float32) {
	c.cache.Add(hash, vector)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	return c.cache.Len()
}
