package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generator errors
var (
	ErrGeneratorFailed      = errors.New("answer generator failed")
	ErrGeneratorRateLimited = errors.New("answer generator rate limited")
)

// Generator produces a completion for a prompt. Implementations wrap an
// LLM provider.
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Model() string
}

// HTTPGenerator talks to an OpenAI-compatible /chat/completions endpoint
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPGenerator creates an OpenAI-compatible answer generator
func NewHTTPGenerator(baseURL, apiKey, model string, timeout time.Duration) (*HTTPGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not set", ErrGeneratorFailed)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// systemPrompt instructs the model to stay grounded in the provided
// context and cite file paths.
const systemPrompt = `You are a code assistant answering questions about a codebase.
Answer using ONLY the provided code context. Cite the file paths of the
code you base each claim on. If the context does not contain the answer,
say so; never invent code or file paths.`

// Complete sends the prompt and returns the generated answer
func (g *HTTPGenerator) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload := map[string]interface{}{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens": maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneratorFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %s", ErrGeneratorRateLimited, string(bodyBytes))
		}
		return "", fmt.Errorf("%w: %d: %s", ErrGeneratorFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrGeneratorFailed)
	}
	return apiResp.Choices[0].Message.Content, nil
}

// Model returns the generator model name
func (g *HTTPGenerator) Model() string { return g.model }
