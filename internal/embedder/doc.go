// Package embedder turns chunk text into fixed-dimensionality vectors.
// The adapter layer enforces a hard token ceiling with a safety margin,
// deduplicates via a content-hash LRU cache, batches provider calls, and
// degrades failing batches by bisection down to individual items.
package embedder
