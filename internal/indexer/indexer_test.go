package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekr-dev/codeseek/internal/chunker"
	"github.com/seekr-dev/codeseek/internal/config"
	"github.com/seekr-dev/codeseek/internal/embedder"
	"github.com/seekr-dev/codeseek/internal/source"
	"github.com/seekr-dev/codeseek/internal/store"
	"github.com/seekr-dev/codeseek/pkg/types"
)

const (
	testTimeout  = 5 * time.Second
	pollInterval = 5 * time.Millisecond
)

var indexKey = types.RepoKey{Owner: "acme", Repo: "api", Branch: "main"}

// fakeSource serves in-memory files, optionally blocking until released so
// tests can observe a run mid-flight.
type fakeSource struct {
	mu    sync.Mutex
	files map[string][]types.SourceFile
	err   error
	gate  chan struct{}
}

func (f *fakeSource) ListFiles(ctx context.Context, key types.RepoKey) ([]types.SourceFile, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.files[key.String()], nil
}

func (f *fakeSource) set(key types.RepoKey, files []types.SourceFile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[string][]types.SourceFile)
	}
	f.files[key.String()] = files
}

// poisoningProvider rejects any batch whose text carries the marker with a
// non-retryable payload error, so only bisection down to the single bad
// chunk lets the rest of the batch through.
type poisoningProvider struct {
	inner  embedder.Provider
	marker string
}

func (p *poisoningProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, p.marker) {
			return nil, fmt.Errorf("%w: input rejected", embedder.ErrPayloadTooLarge)
		}
	}
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *poisoningProvider) Dimension() int { return p.inner.Dimension() }
func (p *poisoningProvider) Model() string  { return p.inner.Model() }
func (p *poisoningProvider) Close() error   { return p.inner.Close() }

func goFile(path, body string) types.SourceFile {
	return types.SourceFile{Path: path, Content: body, Language: "go"}
}

func newTestIndexer(t *testing.T, src source.ContentSource) (*Indexer, store.Store) {
	t.Helper()
	return newTestIndexerWithProvider(t, src, embedder.NewLocalProvider(16))
}

func newTestIndexerWithProvider(t *testing.T, src source.ContentSource, provider embedder.Provider) (*Indexer, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ch := chunker.New(config.ChunkerConfig{TargetTokens: 200, OverlapTokens: 20, MaxFileTokens: 10000}, zerolog.Nop())
	emb := embedder.NewAdapter(provider, embedder.NewCache(1000), 10, 8192, zerolog.Nop())
	idx := New(src, ch, emb, st, 2, zerolog.Nop())
	return idx, st
}

func threeFileRepo() []types.SourceFile {
	return []types.SourceFile{
		goFile("auth.go", "package api\n\nfunc Login(user string) error {\n\treturn nil\n}\n"),
		goFile("server.go", "package api\n\nfunc Serve(addr string) error {\n\treturn nil\n}\n\nfunc Shutdown() {\n}\n"),
		goFile("util.go", "package api\n\nfunc Clamp(v, lo, hi int) int {\n\tif v < lo {\n\t\treturn lo\n\t}\n\treturn v\n}\n"),
	}
}

func TestIndexRepository_FullPipeline(t *testing.T) {
	src := &fakeSource{}
	src.set(indexKey, threeFileRepo())
	idx, st := newTestIndexer(t, src)

	job, err := idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)

	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 3, job.TotalFiles)
	assert.Equal(t, 3, job.IndexedFiles)
	assert.Equal(t, 0, job.SkippedFiles)
	assert.Greater(t, job.TotalChunks, 0)
	assert.Equal(t, job.TotalChunks, job.IndexedChunks+job.SkippedChunks)
	assert.NotNil(t, job.CompletedAt)

	count, err := st.CountChunks(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, job.IndexedChunks, count)

	// The persisted record matches the returned job.
	persisted, err := idx.Status(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, job.ID, persisted.ID)
	assert.Equal(t, types.JobCompleted, persisted.Status)
}

func TestIndexRepository_Idempotent(t *testing.T) {
	src := &fakeSource{}
	src.set(indexKey, threeFileRepo())
	idx, st := newTestIndexer(t, src)

	first, err := idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)
	second, err := idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "each run gets its own identifier")
	assert.Equal(t, first.IndexedChunks, second.IndexedChunks)

	count, err := st.CountChunks(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, second.IndexedChunks, count, "re-indexing the same content must not grow the store")
}

func TestIndexRepository_UnembeddableChunkSkipped(t *testing.T) {
	const marker = "unembeddable_payload_sentinel"
	files := make([]types.SourceFile, 10)
	for i := range files {
		body := fmt.Sprintf("package api\n\nfunc Handler%d() string {\n\treturn \"ok %d\"\n}\n", i, i)
		if i == 4 {
			body = fmt.Sprintf("package api\n\nfunc Handler%d() string {\n\treturn %q\n}\n", i, marker)
		}
		files[i] = goFile(fmt.Sprintf("handler%d.go", i), body)
	}
	src := &fakeSource{}
	src.set(indexKey, files)
	provider := &poisoningProvider{inner: embedder.NewLocalProvider(16), marker: marker}
	idx, st := newTestIndexerWithProvider(t, src, provider)

	job, err := idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)

	assert.Equal(t, types.JobCompleted, job.Status, "one bad chunk must not fail the run")
	assert.Equal(t, 10, job.TotalFiles)
	assert.Equal(t, 10, job.IndexedFiles)
	assert.Equal(t, 1, job.SkippedChunks)
	assert.Equal(t, job.TotalChunks-1, job.IndexedChunks)

	count, err := st.CountChunks(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, job.IndexedChunks, count, "only embeddable chunks are persisted")
}

func TestIndexRepository_RemovedFileLeavesNoStaleChunks(t *testing.T) {
	src := &fakeSource{}
	src.set(indexKey, threeFileRepo())
	idx, st := newTestIndexer(t, src)

	_, err := idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)

	// Drop util.go and re-index.
	src.set(indexKey, threeFileRepo()[:2])
	_, err = idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)

	vec := make([]float32, 16)
	vec[0] = 1
	results, err := st.Search(context.Background(), store.SearchRequest{
		Vector: vec, TopK: 100, Threshold: -1,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "util.go", r.Chunk.FilePath, "chunks of removed files must be deleted")
	}
}

func TestIndexRepository_ConcurrentSameKeyRejected(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	src.set(indexKey, threeFileRepo())
	idx, _ := newTestIndexer(t, src)

	done := make(chan error, 1)
	go func() {
		_, err := idx.IndexRepository(context.Background(), indexKey)
		done <- err
	}()

	// Wait until the first run holds the lock (it is blocked in ListFiles).
	require.Eventually(t, func() bool {
		return !idx.locks.TryAcquire(indexKey)
	}, testTimeout, pollInterval)

	_, err := idx.IndexRepository(context.Background(), indexKey)
	assert.ErrorIs(t, err, ErrIndexInProgress)

	close(src.gate)
	require.NoError(t, <-done)

	// The lock is released after completion.
	_, err = idx.IndexRepository(context.Background(), indexKey)
	assert.NoError(t, err)
}

func TestIndexRepository_DifferentKeysRunIndependently(t *testing.T) {
	otherKey := types.RepoKey{Owner: "beta", Repo: "svc", Branch: "main"}
	src := &fakeSource{}
	src.set(indexKey, threeFileRepo())
	src.set(otherKey, []types.SourceFile{goFile("main.go", "package main\n\nfunc main() {\n}\n")})
	idx, st := newTestIndexer(t, src)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = idx.IndexRepository(context.Background(), indexKey) }()
	go func() { defer wg.Done(); _, errs[1] = idx.IndexRepository(context.Background(), otherKey) }()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	repos, err := st.ListRepositories(context.Background())
	require.NoError(t, err)
	assert.Len(t, repos, 2)
}

func TestIndexRepository_SourceFailureFailsRun(t *testing.T) {
	src := &fakeSource{err: errors.New("remote unavailable")}
	idx, _ := newTestIndexer(t, src)

	job, err := idx.IndexRepository(context.Background(), indexKey)
	require.Error(t, err)
	require.NotNil(t, job)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Contains(t, job.Error, "remote unavailable")

	// The failure is persisted and visible through Status.
	persisted, err := idx.Status(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, persisted.Status)
	assert.NotEmpty(t, persisted.Error)
}

func TestIndexRepository_EmptyRepositoryCompletes(t *testing.T) {
	src := &fakeSource{}
	src.set(indexKey, nil)
	idx, st := newTestIndexer(t, src)

	job, err := idx.IndexRepository(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 0, job.TotalChunks)

	count, err := st.CountChunks(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIndexRepository_InvalidKey(t *testing.T) {
	idx, _ := newTestIndexer(t, &fakeSource{})
	_, err := idx.IndexRepository(context.Background(), types.RepoKey{Owner: "acme"})
	assert.Error(t, err)
}

func TestIndexRepository_Cancellation(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	src.set(indexKey, threeFileRepo())
	idx, _ := newTestIndexer(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var job *types.Job
	var runErr error
	go func() {
		defer close(done)
		job, runErr = idx.IndexRepository(ctx, indexKey)
	}()

	// Cancel while the run is blocked fetching the repository.
	require.Eventually(t, func() bool {
		return !idx.locks.TryAcquire(indexKey)
	}, testTimeout, pollInterval)
	cancel()
	<-done

	require.Error(t, runErr)
	require.NotNil(t, job)
	assert.Equal(t, types.JobFailed, job.Status)

	// No chunks were written for the cancelled run.
	count, err := idx.store.CountChunks(context.Background(), indexKey)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStatus_NeverIndexed(t *testing.T) {
	idx, _ := newTestIndexer(t, &fakeSource{})
	_, err := idx.Status(context.Background(), indexKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKeyLocks(t *testing.T) {
	locks := newKeyLocks()
	key := types.RepoKey{Owner: "a", Repo: "b", Branch: "c"}

	assert.False(t, locks.Held(key))
	assert.True(t, locks.TryAcquire(key))
	assert.False(t, locks.TryAcquire(key))
	assert.True(t, locks.Held(key))

	other := types.RepoKey{Owner: "a", Repo: "b", Branch: "d"}
	assert.True(t, locks.TryAcquire(other))

	locks.Release(key)
	assert.False(t, locks.Held(key))
	assert.True(t, locks.TryAcquire(key))
}
