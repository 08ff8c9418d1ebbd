package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seekr-dev/codeseek/internal/config"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// New creates an embedding adapter from configuration
func New(cfg config.EmbeddingConfig, log zerolog.Logger) (*Adapter, error) {
	var provider Provider
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		p, err := NewHTTPProvider(cfg.BaseURL, cfg.APIKey(), cfg.Model, cfg.Dimension,
			time.Duration(cfg.TimeoutSecs)*time.Second)
		if err != nil {
			return nil, err
		}
		provider = p
	case ProviderLocal, "":
		provider = NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Provider)
	}

	cache := NewCache(cfg.CacheEntries)
	return NewAdapter(provider, cache, cfg.BatchSize, cfg.MaxTokens, log), nil
}
