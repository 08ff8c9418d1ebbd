package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seekr-dev/codeseek/internal/chunker"
	"github.com/seekr-dev/codeseek/internal/embedder"
	"github.com/seekr-dev/codeseek/internal/source"
	"github.com/seekr-dev/codeseek/internal/store"
	"github.com/seekr-dev/codeseek/pkg/types"
)

// Common errors
var (
	// ErrIndexInProgress means another run holds the lock for this key
	ErrIndexInProgress = errors.New("indexing already in progress for this repository")
	// ErrNoChunksEmbedded means every chunk failed embedding; the run is
	// failed rather than completing with an empty index.
	ErrNoChunksEmbedded = errors.New("no chunks could be embedded")
)

// embedGroupSize is how many chunks one worker embeds and counts at a time
const embedGroupSize = 50

// Indexer drives the pipeline: fetch -> chunk -> embed -> store. Runs are
// idempotent per (owner, repo, branch): existing chunks are deleted before
// fresh ones are written, so no stale chunk survives a structural change.
type Indexer struct {
	source   source.ContentSource
	chunker  *chunker.Chunker
	embedder *embedder.Adapter
	store    store.Store
	workers  int
	locks    *keyLocks
	log      zerolog.Logger
}

// New creates an Indexer
func New(src source.ContentSource, ch *chunker.Chunker, emb *embedder.Adapter, st store.Store, workers int, log zerolog.Logger) *Indexer {
	if workers <= 0 {
		workers = 4
	}
	return &Indexer{
		source:   src,
		chunker:  ch,
		embedder: emb,
		store:    st,
		workers:  workers,
		locks:    newKeyLocks(),
		log:      log.With().Str("component", "indexer").Logger(),
	}
}

// IndexRepository runs the full pipeline for one repository key. The
// returned job reflects the final state; the same record is observable
// mid-run through Status. A non-nil error means the run failed.
func (idx *Indexer) IndexRepository(ctx context.Context, key types.RepoKey) (*types.Job, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !idx.locks.TryAcquire(key) {
		return nil, fmt.Errorf("%w: %s", ErrIndexInProgress, key)
	}
	defer idx.locks.Release(key)

	log := idx.log.With().Str("owner", key.Owner).Str("repo", key.Repo).Str("branch", key.Branch).Logger()

	job := &types.Job{
		ID:        uuid.NewString(),
		Owner:     key.Owner,
		Repo:      key.Repo,
		Branch:    key.Branch,
		Status:    types.JobPending,
		StartedAt: time.Now(),
	}
	if err := idx.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	if err := idx.run(ctx, log, job); err != nil {
		job.Fail(err)
		// Persist the failure with a fresh context: the run's context may
		// be the reason we are here.
		putCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if putErr := idx.store.PutJob(putCtx, job); putErr != nil {
			log.Error().Err(putErr).Msg("failed to persist job failure")
		}
		log.Error().Err(err).Msg("indexing run failed")
		return job, err
	}

	log.Info().
		Int("files", job.IndexedFiles).
		Int("chunks", job.IndexedChunks).
		Dur("duration", job.Duration()).
		Msg("indexing run completed")
	return job, nil
}

// InProgress reports whether an indexing run for key is currently active.
func (idx *Indexer) InProgress(key types.RepoKey) bool {
	return idx.locks.Held(key)
}

// Status returns the latest job record for the key. Polled by callers;
// nothing is pushed.
func (idx *Indexer) Status(ctx context.Context, key types.RepoKey) (*types.Job, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return idx.store.GetJob(ctx, key)
}

// run executes the pipeline stages, returning the first run-fatal error
func (idx *Indexer) run(ctx context.Context, log zerolog.Logger, job *types.Job) error {
	// fetching
	if err := idx.advance(ctx, job, types.JobFetching); err != nil {
		return err
	}
	files, err := idx.source.ListFiles(ctx, job.Key())
	if err != nil {
		// Content source failure is fatal: no partial index is better
		// than none when the source itself is unavailable.
		return fmt.Errorf("fetch repository: %w", err)
	}

	// chunking
	if err := idx.advance(ctx, job, types.JobChunking); err != nil {
		return err
	}
	job.TotalFiles = len(files)
	chunks := idx.chunkFiles(ctx, log, job, files)
	if err := ctx.Err(); err != nil {
		return err
	}
	job.TotalChunks = len(chunks)
	if err := idx.store.PutJob(ctx, job); err != nil {
		return err
	}
	if len(files) > 0 && len(chunks) == 0 && job.SkippedFiles == job.TotalFiles {
		return errors.New("chunking produced nothing: every file failed or was skipped")
	}

	// embedding
	if err := idx.advance(ctx, job, types.JobEmbedding); err != nil {
		return err
	}
	embedded, err := idx.embedChunks(ctx, log, job, chunks)
	if err != nil {
		return err
	}
	if len(chunks) > 0 && len(embedded) == 0 {
		return ErrNoChunksEmbedded
	}

	// storing: delete-then-write so re-indexing cannot leave orphaned
	// chunks for removed files. Cancellation after the delete leaves
	// nothing for the key, never a partial mix presented as completed.
	if err := idx.advance(ctx, job, types.JobStoring); err != nil {
		return err
	}
	if err := idx.store.DeleteRepository(ctx, job.Key()); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	if err := idx.store.UpsertChunks(ctx, embedded); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	return idx.advance(ctx, job, types.JobCompleted)
}

// advance transitions the job and persists the new state
func (idx *Indexer) advance(ctx context.Context, job *types.Job, next types.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := job.Transition(next); err != nil {
		return err
	}
	return idx.store.PutJob(ctx, job)
}

// chunkFiles chunks every file, skipping (and logging) per-file failures.
// Chunking errors never abort the run.
func (idx *Indexer) chunkFiles(ctx context.Context, log zerolog.Logger, job *types.Job, files []types.SourceFile) []types.Chunk {
	var chunks []types.Chunk
	for i, file := range files {
		if ctx.Err() != nil {
			return chunks
		}
		fileChunks, err := idx.chunker.ChunkFile(job.Key(), file)
		if err != nil {
			log.Warn().Str("path", file.Path).Err(err).Msg("skipping file that failed chunking")
			job.SkippedFiles++
			continue
		}
		chunks = append(chunks, fileChunks...)
		job.IndexedFiles++
		if (i+1)%20 == 0 {
			_ = idx.store.PutJob(ctx, job)
		}
	}
	return chunks
}

// embedChunks embeds chunks with bounded concurrency. Items that fail
// after retries and bisection are counted skipped; the job fails only when
// nothing at all could be embedded.
func (idx *Indexer) embedChunks(ctx context.Context, log zerolog.Logger, job *types.Job, chunks []types.Chunk) ([]types.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	modelTag := idx.embedder.Model()
	embedded := make([][]types.Chunk, (len(chunks)+embedGroupSize-1)/embedGroupSize)

	var mu sync.Mutex // Guards job counters and PutJob during the stage

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for start := 0; start < len(chunks); start += embedGroupSize {
		start := start
		end := start + embedGroupSize
		if end > len(chunks) {
			end = len(chunks)
		}
		groupIdx := start / embedGroupSize
		group := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(group))
			for i := range group {
				texts[i] = group[i].EmbedText()
			}
			results, err := idx.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d: %w", groupIdx, err)
			}

			var ok []types.Chunk
			skipped := 0
			for i, res := range results {
				if res.Err != nil {
					log.Warn().Str("path", group[i].FilePath).
						Int("chunk", group[i].ChunkIndex).
						Err(res.Err).Msg("skipping chunk that failed embedding")
					skipped++
					continue
				}
				c := group[i]
				c.Embedding = res.Vector
				c.ModelTag = modelTag
				ok = append(ok, c)
			}
			embedded[groupIdx] = ok

			mu.Lock()
			job.IndexedChunks += len(ok)
			job.SkippedChunks += skipped
			_ = idx.store.PutJob(gctx, job)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []types.Chunk
	for _, group := range embedded {
		flat = append(flat, group...)
	}
	return flat, nil
}
