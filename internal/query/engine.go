package query

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/seekr-dev/codeseek/internal/config"
	"github.com/seekr-dev/codeseek/internal/embedder"
	"github.com/seekr-dev/codeseek/internal/retry"
	"github.com/seekr-dev/codeseek/internal/store"
	"github.com/seekr-dev/codeseek/pkg/types"
)

// ErrEmptyQuestion is returned for blank questions
var ErrEmptyQuestion = errors.New("question cannot be empty")

// NoRelevantCodeMessage is the answer text when nothing clears the
// similarity threshold. An honest miss beats a fabricated answer.
const NoRelevantCodeMessage = "No relevant code was found for this question in the indexed repositories."

// Scope narrows retrieval to a repository subset. Empty fields match all.
type Scope struct {
	Owner    string
	Repo     string
	Branch   string
	Language string
}

// Options overrides retrieval defaults per query. Threshold is a pointer
// so an explicit zero (accept every candidate) is distinct from unset.
type Options struct {
	TopK      int
	Threshold *float64
}

// cacheEntry is a cached query result with expiry
type cacheEntry struct {
	result    *types.QueryResult
	expiresAt time.Time
}

// Engine answers natural-language questions over the indexed chunks.
// It owns no persistent state: embed the question, retrieve, synthesize.
type Engine struct {
	store     store.Store
	embedder  *embedder.Adapter
	generator Generator

	topK          int
	threshold     float64
	contextTokens int
	answerTokens  int

	cache    *lru.Cache[[32]byte, cacheEntry]
	cacheTTL time.Duration
	retryCfg retry.Config
	log      zerolog.Logger
}

// New creates a query engine. generator may be nil, in which case every
// answer is degraded to the raw ranked chunk list.
func New(st store.Store, emb *embedder.Adapter, gen Generator, queryCfg config.QueryConfig, genCfg config.GeneratorConfig, log zerolog.Logger) *Engine {
	cacheSize := queryCfg.CacheEntries
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[[32]byte, cacheEntry](cacheSize)
	if err != nil {
		cache, _ = lru.New[[32]byte, cacheEntry](256)
	}

	retryCfg := retry.DefaultConfig()
	return &Engine{
		store:         st,
		embedder:      emb,
		generator:     gen,
		topK:          queryCfg.TopK,
		threshold:     queryCfg.SimilarityThreshold,
		contextTokens: genCfg.ContextTokens,
		answerTokens:  genCfg.MaxTokens,
		cache:         cache,
		cacheTTL:      time.Duration(queryCfg.CacheTTLSecs) * time.Second,
		retryCfg:      retryCfg,
		log:           log.With().Str("component", "query").Logger(),
	}
}

// Answer embeds the question, retrieves candidate chunks and synthesizes a
// grounded, cited answer. Generator failures degrade to the raw ranked
// chunk list rather than failing the query.
func (e *Engine) Answer(ctx context.Context, question string, scope Scope, opts *Options) (*types.QueryResult, error) {
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	topK := e.topK
	threshold := e.threshold
	if opts != nil {
		if opts.TopK > 0 {
			topK = opts.TopK
		}
		if opts.Threshold != nil {
			threshold = *opts.Threshold
		}
	}

	key := cacheKey(question, scope, topK, threshold)
	if entry, ok := e.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
		return entry.result, nil
	}

	vector, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	// The model tag filter guards against comparing the question against
	// chunks embedded by a different model, which silently degrades
	// similarity quality.
	candidates, err := e.store.Search(ctx, store.SearchRequest{
		Vector:    vector,
		TopK:      topK,
		Threshold: threshold,
		Owner:     scope.Owner,
		Repo:      scope.Repo,
		Branch:    scope.Branch,
		Language:  scope.Language,
		ModelTag:  e.embedder.Model(),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if len(candidates) == 0 {
		result := &types.QueryResult{
			Answer:     NoRelevantCodeMessage,
			Sources:    []types.Source{},
			Confidence: types.ConfidenceLow,
			Found:      false,
		}
		e.put(key, result)
		return result, nil
	}

	result := &types.QueryResult{
		Sources:    toSources(candidates),
		Confidence: deriveConfidence(candidates, threshold),
		Found:      true,
	}

	answer, err := e.synthesize(ctx, question, candidates)
	if err != nil {
		e.log.Warn().Err(err).Msg("answer generation failed, returning raw ranked chunks")
		result.Degraded = true
	} else {
		result.Answer = answer
	}

	e.put(key, result)
	return result, nil
}

// synthesize asks the generator for a grounded answer, retrying with
// backoff before giving up
func (e *Engine) synthesize(ctx context.Context, question string, candidates []store.SearchResult) (string, error) {
	if e.generator == nil {
		return "", ErrGeneratorFailed
	}
	prompt := buildPrompt(question, candidates, e.contextTokens)
	return retry.Do(ctx, e.retryCfg, func() (string, error) {
		return e.generator.Complete(ctx, prompt, e.answerTokens)
	})
}

func (e *Engine) put(key [32]byte, result *types.QueryResult) {
	if e.cacheTTL <= 0 {
		return
	}
	e.cache.Add(key, cacheEntry{result: result, expiresAt: time.Now().Add(e.cacheTTL)})
}

func cacheKey(question string, scope Scope, topK int, threshold float64) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d|%f",
		question, scope.Owner, scope.Repo, scope.Branch, scope.Language, topK, threshold)))
}

func toSources(candidates []store.SearchResult) []types.Source {
	sources := make([]types.Source, len(candidates))
	for i, cand := range candidates {
		sources[i] = types.Source{
			FilePath:   cand.Chunk.FilePath,
			ChunkName:  cand.Chunk.ChunkName,
			StartLine:  cand.Chunk.StartLine,
			EndLine:    cand.Chunk.EndLine,
			Similarity: cand.Similarity,
		}
	}
	return sources
}

// deriveConfidence bands the answer by the top score and its gap to the
// runner-up. A top score near the threshold, or a tight score cluster,
// means the match is ambiguous.
func deriveConfidence(candidates []store.SearchResult, threshold float64) types.Confidence {
	top := candidates[0].Similarity
	gap := 1.0
	if len(candidates) > 1 {
		gap = top - candidates[1].Similarity
	}

	switch {
	case top < threshold+0.1 || gap < 0.02:
		return types.ConfidenceLow
	case top >= 0.6 && gap >= 0.1:
		return types.ConfidenceHigh
	default:
		return types.ConfidenceMedium
	}
}
