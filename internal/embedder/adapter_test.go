package embedder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// countingProvider wraps LocalProvider and records every text it is asked
// to embed, optionally failing chosen texts.
type countingProvider struct {
	inner *LocalProvider

	mu       sync.Mutex
	calls    int
	embedded map[string]int
	failText map[string]error
}

func newCountingProvider(dim int) *countingProvider {
	return &countingProvider{
		inner:    NewLocalProvider(dim),
		embedded: make(map[string]int),
		failText: make(map[string]error),
	}
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	for _, t := range texts {
		p.embedded[t]++
		if err, ok := p.failText[t]; ok {
			p.mu.Unlock()
			return nil, err
		}
	}
	p.mu.Unlock()
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *countingProvider) Dimension() int { return p.inner.Dimension() }
func (p *countingProvider) Model() string  { return "counting-test" }
func (p *countingProvider) Close() error   { return nil }

func (p *countingProvider) timesEmbedded(text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedded[text]
}

func newTestAdapter(p Provider) *Adapter {
	a := NewAdapter(p, NewCache(100), 4, 8192, zerolog.Nop())
	a.retryCfg.BaseDelay = 0
	return a
}

func TestEmbedText(t *testing.T) {
	a := newTestAdapter(newCountingProvider(16))

	v, err := a.EmbedText(context.Background(), "func main() {}")
	require.NoError(t, err)
	assert.Len(t, v, 16)

	_, err = a.EmbedText(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbedBatch_OrderPreserved(t *testing.T) {
	p := newCountingProvider(8)
	a := newTestAdapter(p)

	texts := []string{"alpha", "beta", "gamma"}
	results, err := a.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, text := range texts {
		require.NoError(t, results[i].Err)
		want := p.inner.embedOne(text)
		assert.Equal(t, want, results[i].Vector, "result %d must match its input", i)
	}
}

func TestEmbedBatch_CacheHitSkipsProvider(t *testing.T) {
	p := newCountingProvider(8)
	a := newTestAdapter(p)

	_, err := a.EmbedBatch(context.Background(), []string{"repeated"})
	require.NoError(t, err)
	_, err = a.EmbedBatch(context.Background(), []string{"repeated"})
	require.NoError(t, err)

	assert.Equal(t, 1, p.timesEmbedded("repeated"))
}

func TestEmbedBatch_DeduplicatesWithinBatch(t *testing.T) {
	p := newCountingProvider(8)
	a := newTestAdapter(p)

	results, err := a.EmbedBatch(context.Background(), []string{"same", "same", "same"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, results[0].Vector, r.Vector)
	}
	assert.Equal(t, 1, p.timesEmbedded("same"))
}

func TestEmbedBatch_ConcurrentSameText_SingleProviderCall(t *testing.T) {
	p := newCountingProvider(8)
	a := newTestAdapter(p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := a.EmbedBatch(context.Background(), []string{"contended"})
			assert.NoError(t, err)
			assert.NoError(t, results[0].Err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.timesEmbedded("contended"))
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	a := newTestAdapter(newCountingProvider(8))
	_, err := a.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEmbedBatch_EmptyItemMarked(t *testing.T) {
	a := newTestAdapter(newCountingProvider(8))
	results, err := a.EmbedBatch(context.Background(), []string{"ok", ""})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrEmptyText)
}

func TestEmbedBatch_BisectionIsolatesPoisonedItem(t *testing.T) {
	p := newCountingProvider(8)
	p.failText["poison"] = fmt.Errorf("%w: input rejected", ErrPayloadTooLarge)
	a := newTestAdapter(p)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("healthy text %d", i)
	}
	texts[6] = "poison"

	results, err := a.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	good := 0
	for i, r := range results {
		if texts[i] == "poison" {
			assert.Error(t, r.Err)
			continue
		}
		if assert.NoError(t, r.Err, "text %d should survive the poisoned batchmate", i) {
			good++
		}
	}
	assert.Equal(t, 9, good)
}

func TestEmbedBatch_RetriesTransientFailure(t *testing.T) {
	p := &transientProvider{
		inner:    newCountingProvider(8),
		failures: 1,
		failErr:  ErrProviderFailed,
		failOn:   "flaky",
	}
	a := newTestAdapter(p)

	results, err := a.EmbedBatch(context.Background(), []string{"flaky"})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
}

// transientProvider fails a given text a fixed number of times, then
// succeeds
type transientProvider struct {
	inner    Provider
	mu       sync.Mutex
	failures int
	failErr  error
	failOn   string
}

func (p *transientProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	shouldFail := false
	for _, t := range texts {
		if t == p.failOn && p.failures > 0 {
			p.failures--
			shouldFail = true
		}
	}
	p.mu.Unlock()
	if shouldFail {
		return nil, p.failErr
	}
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *transientProvider) Dimension() int { return p.inner.Dimension() }
func (p *transientProvider) Model() string  { return p.inner.Model() }
func (p *transientProvider) Close() error   { return nil }

func TestTruncate(t *testing.T) {
	a := NewAdapter(NewLocalProvider(8), nil, 4, 100, zerolog.Nop())

	short := "short text"
	assert.Equal(t, short, a.Truncate(short))

	long := strings.Repeat("x", 1000) // 250 tokens against a 100 token ceiling
	truncated := a.Truncate(long)
	assert.Less(t, len(truncated), len(long))

	limit := 100 * (100 - TruncationMarginPercent) / 100
	assert.Equal(t, limit*types.TokensPerChar, len(truncated))
	assert.LessOrEqual(t, types.EstimateTokens(truncated), limit)
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	a := NewAdapter(NewLocalProvider(8), nil, 4, 100, zerolog.Nop())

	// Three-byte runes guarantee the byte cut lands mid-rune.
	long := strings.Repeat("世", 200)
	truncated := a.Truncate(long)

	assert.Less(t, len(truncated), len(long))
	assert.True(t, utf8.ValidString(truncated), "truncation must not split a rune")
	assert.Zero(t, len(truncated)%3, "only whole runes survive")
}

func TestCache(t *testing.T) {
	c := NewCache(2)

	c.Set("a", []float32{1, 2})
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)

	// Mutating the returned slice must not pollute the cache.
	v[0] = 99
	v2, _ := c.Get("a")
	assert.Equal(t, float32(1), v2[0])

	_, ok = c.Get("missing")
	assert.False(t, ok)

	// LRU eviction at capacity.
	c.Set("b", []float32{3})
	c.Set("c", []float32{4})
	assert.Equal(t, 2, c.Len())
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ComputeHash(""))
	assert.Equal(t, ComputeHash("same"), ComputeHash("same"))
	assert.NotEqual(t, ComputeHash("a"), ComputeHash("b"))
}
