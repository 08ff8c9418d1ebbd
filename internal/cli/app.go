package cli

import (
	"fmt"
	"time"

	"github.com/seekr-dev/codeseek/internal/chunker"
	"github.com/seekr-dev/codeseek/internal/config"
	"github.com/seekr-dev/codeseek/internal/embedder"
	"github.com/seekr-dev/codeseek/internal/indexer"
	"github.com/seekr-dev/codeseek/internal/query"
	"github.com/seekr-dev/codeseek/internal/source"
	"github.com/seekr-dev/codeseek/internal/store"
)

// app bundles the wired engine components for a command invocation
type app struct {
	store    store.Store
	embedder *embedder.Adapter
	indexer  *indexer.Indexer
	engine   *query.Engine
}

// buildApp wires the engine from configuration. wantGenerator marks commands
// that answer questions: when the generator is unavailable they warn and
// degrade to raw ranked chunks. Indexing commands never need one.
func buildApp(cfg *config.Config, wantGenerator bool) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	emb, err := embedder.New(cfg.Embedding, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	var gen query.Generator
	httpGen, err := query.NewHTTPGenerator(cfg.Generator.BaseURL, cfg.Generator.APIKey(),
		cfg.Generator.Model, time.Duration(cfg.Generator.TimeoutSecs)*time.Second)
	if err == nil {
		gen = httpGen
	} else if wantGenerator {
		logger.Warn().Err(err).Msg("answer generator unavailable, queries will return raw ranked chunks")
	}

	src := source.NewFilesystemSource(cfg.Source.Root, cfg.Source.Includes,
		cfg.Source.Excludes, cfg.Source.MaxFileBytes, logger)
	ch := chunker.New(cfg.Chunker, logger)
	idx := indexer.New(src, ch, emb, st, cfg.Indexer.Workers, logger)
	engine := query.New(st, emb, gen, cfg.Query, cfg.Generator, logger)

	return &app{store: st, embedder: emb, indexer: idx, engine: engine}, nil
}

// close releases the app's resources
func (a *app) close() {
	_ = a.embedder.Close()
	_ = a.store.Close()
}
