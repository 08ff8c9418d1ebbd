package embedder

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/seekr-dev/codeseek/internal/retry"
	"github.com/seekr-dev/codeseek/pkg/types"
)

// TruncationMarginPercent is the safety margin kept below the provider's
// hard token ceiling when truncating. The chars/4 estimator is approximate,
// so text is cut at 98% of the documented limit.
const TruncationMarginPercent = 2

// Result is the outcome for one input of a batch embed. Err is set for
// items that could not be embedded after retries and bisection; the caller
// records those as skipped chunks.
type Result struct {
	Vector []float32
	Err    error
}

// Adapter wraps a Provider with hard safety truncation, a content-hash
// cache, request batching, retry with backoff and batch bisection on
// persistent failure.
type Adapter struct {
	provider  Provider
	cache     *Cache
	batchSize int
	maxTokens int
	retryCfg  retry.Config
	log       zerolog.Logger

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewAdapter creates an embedding adapter around a provider
func NewAdapter(provider Provider, cache *Cache, batchSize, maxTokens int, log zerolog.Logger) *Adapter {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	cfg := retry.DefaultConfig()
	cfg.Retryable = func(err error) bool {
		// Oversized payloads are handled by truncation and bisection,
		// never by retrying the identical request.
		return !errors.Is(err, ErrPayloadTooLarge) && !errors.Is(err, ErrInvalidInput)
	}
	return &Adapter{
		provider:  provider,
		cache:     cache,
		batchSize: batchSize,
		maxTokens: maxTokens,
		retryCfg:  cfg,
		log:       log.With().Str("component", "embedder").Logger(),
		inflight:  make(map[string]chan struct{}),
	}
}

// Truncate cuts text to the provider token ceiling minus the safety margin,
// using the same estimator as the chunker. Actual truncation is logged: it
// signals the chunker's target is mis-tuned.
func (a *Adapter) Truncate(text string) string {
	limit := a.maxTokens * (100 - TruncationMarginPercent) / 100
	if types.EstimateTokens(text) <= limit {
		return text
	}
	a.log.Warn().Int("tokens", types.EstimateTokens(text)).Int("limit", limit).
		Msg("truncating text above embedding token ceiling")
	cut := limit * types.TokensPerChar
	// Back off to a rune boundary so the truncated text stays valid UTF-8.
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// EmbedText embeds a single text, served from cache when possible.
// Used for query embedding.
func (a *Adapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	results, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return results[0].Vector, nil
}

// EmbedBatch embeds texts, returning one Result per input in the same
// order. Identical texts are deduplicated before any network call, cache
// hits are served directly, and concurrent batches racing on the same hash
// wait for the in-flight call instead of repeating it. The returned error
// is non-nil only for wholesale failure (cancellation, empty input).
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, ErrInvalidInput
	}

	results := make([]Result, len(texts))
	hashes := make([]string, len(texts))

	// Resolve from cache, claim ownership of misses, note hashes another
	// goroutine is already fetching.
	owned := make(map[string]string) // hash -> truncated text
	var waits []chan struct{}
	a.mu.Lock()
	for i, text := range texts {
		if text == "" {
			results[i].Err = ErrEmptyText
			continue
		}
		truncated := a.Truncate(text)
		hashes[i] = ComputeHash(truncated)
		if _, ok := owned[hashes[i]]; ok {
			continue
		}
		if a.cache != nil {
			if v, ok := a.cache.Get(hashes[i]); ok {
				results[i].Vector = v
				continue
			}
		}
		if ch, ok := a.inflight[hashes[i]]; ok {
			waits = append(waits, ch)
			continue
		}
		ch := make(chan struct{})
		a.inflight[hashes[i]] = ch
		owned[hashes[i]] = truncated
	}
	a.mu.Unlock()

	fetched := make(map[string]Result)
	if len(owned) > 0 {
		a.fetchOwned(ctx, owned, fetched)
	}

	// Wait for hashes owned by concurrent batches, then read the cache.
	for _, ch := range waits {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for i := range texts {
		if results[i].Vector != nil || results[i].Err != nil {
			continue
		}
		if r, ok := fetched[hashes[i]]; ok {
			results[i] = r
			continue
		}
		if a.cache != nil {
			if v, ok := a.cache.Get(hashes[i]); ok {
				results[i].Vector = v
				continue
			}
		}
		results[i].Err = ErrProviderFailed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchOwned embeds the claimed texts in provider-sized batches and
// publishes the outcomes to the cache and the in-flight waiters.
func (a *Adapter) fetchOwned(ctx context.Context, owned map[string]string, fetched map[string]Result) {
	hashes := make([]string, 0, len(owned))
	texts := make([]string, 0, len(owned))
	for h, t := range owned {
		hashes = append(hashes, h)
		texts = append(texts, t)
	}

	results := make([]Result, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		end := start + a.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		a.embedResilient(ctx, texts[start:end], results[start:end])
	}

	a.mu.Lock()
	for i, h := range hashes {
		if results[i].Err == nil && a.cache != nil {
			a.cache.Set(h, results[i].Vector)
		}
		fetched[h] = results[i]
		if ch, ok := a.inflight[h]; ok {
			close(ch)
			delete(a.inflight, h)
		}
	}
	a.mu.Unlock()
}

// embedResilient fills results for texts, retrying with backoff and, when a
// batch keeps failing, bisecting it so one poisoned item cannot sink its
// batchmates.
func (a *Adapter) embedResilient(ctx context.Context, texts []string, results []Result) {
	vectors, err := retry.Do(ctx, a.retryCfg, func() ([][]float32, error) {
		return a.provider.EmbedBatch(ctx, texts)
	})
	if err == nil {
		for i := range texts {
			results[i].Vector = vectors[i]
		}
		return
	}
	if ctx.Err() != nil {
		for i := range results {
			results[i].Err = ctx.Err()
		}
		return
	}

	if len(texts) == 1 {
		a.log.Warn().Err(err).Msg("skipping item that failed embedding after retries")
		results[0].Err = err
		return
	}

	mid := len(texts) / 2
	a.log.Debug().Int("size", len(texts)).Err(err).Msg("bisecting failed embedding batch")
	a.embedResilient(ctx, texts[:mid], results[:mid])
	a.embedResilient(ctx, texts[mid:], results[mid:])
}

// Dimension returns the provider's embedding dimension
func (a *Adapter) Dimension() int { return a.provider.Dimension() }

// Model returns the provider's model tag, stored per chunk so a model
// mismatch at query time can be detected
func (a *Adapter) Model() string { return a.provider.Model() }

// Close releases provider resources
func (a *Adapter) Close() error { return a.provider.Close() }
