package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider talks to an OpenAI-compatible /embeddings endpoint. The base
// URL is configurable so any compatible provider (OpenAI, Jina, a local
// inference server) can serve it.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewHTTPProvider creates an OpenAI-compatible embedding provider
func NewHTTPProvider(baseURL, apiKey, model string, dimension int, timeout time.Duration) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not set", ErrInvalidInput)
	}
	if model == "" || dimension <= 0 {
		return nil, fmt.Errorf("%w: model and dimension are required", ErrInvalidInput)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// EmbedBatch embeds texts in one API call, preserving input order
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	reqBody := map[string]interface{}{
		"input": texts,
		"model": p.model,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPError(resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrProviderFailed, len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// classifyHTTPError maps provider HTTP failures onto the error taxonomy
func classifyHTTPError(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %d: %s", ErrRateLimited, status, body)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %d: %s", ErrPayloadTooLarge, status, body)
	case status == http.StatusBadRequest && (strings.Contains(body, "maximum context") || strings.Contains(body, "too long") || strings.Contains(body, "max_tokens")):
		return fmt.Errorf("%w: %d: %s", ErrPayloadTooLarge, status, body)
	default:
		return fmt.Errorf("%w: %d: %s", ErrProviderFailed, status, body)
	}
}

func (p *HTTPProvider) Dimension() int { return p.dimension }
func (p *HTTPProvider) Model() string  { return p.model }

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hash-derived vectors. It exists for
// offline use and tests: identical text always maps to the same unit
// vector, so retrieval behaves consistently without a network provider.
type LocalProvider struct {
	dimension int
}

// LocalModelTag names the deterministic local model
const LocalModelTag = "local-hash-v1"

// NewLocalProvider creates a local deterministic embedder
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalProvider{dimension: dimension}
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.embedOne(text)
	}
	return vectors, nil
}

// embedOne derives a unit vector from rolling SHA-256 digests of the text
func (l *LocalProvider) embedOne(text string) []float32 {
	vector := make([]float32, l.dimension)
	seed := sha256.Sum256([]byte(text))
	digest := seed
	for i := 0; i < l.dimension; i++ {
		if i%8 == 0 && i > 0 {
			digest = sha256.Sum256(digest[:])
		}
		bits := binary.LittleEndian.Uint32(digest[(i%8)*4 : (i%8)*4+4])
		vector[i] = float32(bits%2000)/1000.0 - 1.0
	}
	return normalize(vector)
}

func (l *LocalProvider) Dimension() int { return l.dimension }
func (l *LocalProvider) Model() string  { return LocalModelTag }
func (l *LocalProvider) Close() error   { return nil }

// normalize scales a vector to unit length so inner product equals cosine
func normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
