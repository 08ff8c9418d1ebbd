package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekr-dev/codeseek/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testChunk(key types.RepoKey, path string, index int, vector []float32) types.Chunk {
	c := types.Chunk{
		Owner:      key.Owner,
		Repo:       key.Repo,
		Branch:     key.Branch,
		FilePath:   path,
		ChunkIndex: index,
		Content:    fmt.Sprintf("func Chunk%d() {}", index),
		Language:   "go",
		ChunkType:  types.ChunkFunction,
		ChunkName:  fmt.Sprintf("Chunk%d", index),
		StartLine:  index*10 + 1,
		EndLine:    index*10 + 5,
		Embedding:  vector,
		ModelTag:   "test-model",
	}
	c.ComputeTokenCount()
	c.ComputeContentHash()
	return c
}

var storeKey = types.RepoKey{Owner: "acme", Repo: "api", Branch: "main"}

func TestUpsertChunks_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []types.Chunk{
		testChunk(storeKey, "a.go", 0, []float32{1, 0, 0}),
		testChunk(storeKey, "a.go", 1, []float32{0, 1, 0}),
	}
	require.NoError(t, s.UpsertChunks(ctx, chunks))

	count, err := s.CountChunks(ctx, storeKey)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertChunks_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []types.Chunk{testChunk(storeKey, "a.go", 0, []float32{1, 0, 0})}
	require.NoError(t, s.UpsertChunks(ctx, chunks))
	require.NoError(t, s.UpsertChunks(ctx, chunks))

	count, err := s.CountChunks(ctx, storeKey)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "writing the same identity twice must not duplicate")
}

func TestUpsertChunks_UpdatesContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testChunk(storeKey, "a.go", 0, []float32{1, 0, 0})
	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{c}))

	c.Content = "func ChunkRevised() {}"
	c.ComputeContentHash()
	c.Embedding = []float32{0, 0, 1}
	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{c}))

	results, err := s.Search(ctx, SearchRequest{Vector: []float32{0, 0, 1}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "func ChunkRevised() {}", results[0].Chunk.Content)
}

func TestUpsertChunks_RejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "a.go", 0, []float32{1, 0, 0}),
	}))

	err := s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "b.go", 0, []float32{1, 0}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUpsertChunks_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := testChunk(storeKey, "a.go", 0, []float32{1})
	bad.Content = ""
	assert.ErrorIs(t, s.UpsertChunks(ctx, []types.Chunk{bad}), ErrInvalidChunk)

	noVec := testChunk(storeKey, "a.go", 0, nil)
	assert.ErrorIs(t, s.UpsertChunks(ctx, []types.Chunk{noVec}), ErrInvalidChunk)

	assert.NoError(t, s.UpsertChunks(ctx, nil))
}

func TestDeleteRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	other := types.RepoKey{Owner: "acme", Repo: "web", Branch: "main"}

	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "a.go", 0, []float32{1, 0}),
		testChunk(other, "b.go", 0, []float32{0, 1}),
	}))

	require.NoError(t, s.DeleteRepository(ctx, storeKey))

	count, err := s.CountChunks(ctx, storeKey)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = s.CountChunks(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "deleting one key must not touch another")
}

func TestSearch_RankingAndThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "close.go", 0, []float32{1, 0.1, 0}),
		testChunk(storeKey, "far.go", 0, []float32{0, 0, 1}),
		testChunk(storeKey, "exact.go", 0, []float32{1, 0, 0}),
	}))

	results, err := s.Search(ctx, SearchRequest{
		Vector:    []float32{1, 0, 0},
		TopK:      10,
		Threshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2, "orthogonal vector must fall below the threshold")

	assert.Equal(t, "exact.go", results[0].Chunk.FilePath)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.0001)
	assert.Equal(t, "close.go", results[1].Chunk.FilePath)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestSearch_TopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var chunks []types.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, testChunk(storeKey, fmt.Sprintf("f%d.go", i), 0, []float32{1, float32(i) * 0.1}))
	}
	require.NoError(t, s.UpsertChunks(ctx, chunks))

	results, err := s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_DeterministicTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Identical vectors: similarity ties must order by path then index.
	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "b.go", 0, []float32{1, 0}),
		testChunk(storeKey, "a.go", 1, []float32{1, 0}),
		testChunk(storeKey, "a.go", 0, []float32{1, 0}),
	}))

	results, err := s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a.go", results[0].Chunk.FilePath)
	assert.Equal(t, 0, results[0].Chunk.ChunkIndex)
	assert.Equal(t, "a.go", results[1].Chunk.FilePath)
	assert.Equal(t, 1, results[1].Chunk.ChunkIndex)
	assert.Equal(t, "b.go", results[2].Chunk.FilePath)
}

func TestSearch_ScopeFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	other := types.RepoKey{Owner: "beta", Repo: "svc", Branch: "dev"}

	pyChunk := testChunk(other, "svc.py", 0, []float32{1, 0})
	pyChunk.Language = "python"
	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "a.go", 0, []float32{1, 0}),
		pyChunk,
	}))

	results, err := s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 10, Owner: "acme"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme", results[0].Chunk.Owner)

	results, err = s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 10, Language: "python"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "svc.py", results[0].Chunk.FilePath)

	results, err = s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 10, Branch: "dev"})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearch_ModelTagFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := testChunk(storeKey, "old.go", 0, []float32{1, 0})
	old.ModelTag = "legacy-model"
	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "new.go", 0, []float32{1, 0}),
		old,
	}))

	results, err := s.Search(ctx, SearchRequest{Vector: []float32{1, 0}, TopK: 10, ModelTag: "test-model"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new.go", results[0].Chunk.FilePath)
}

func TestSearch_EmptyVector(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Search(context.Background(), SearchRequest{TopK: 5})
	assert.Error(t, err)
}

func TestPutGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &types.Job{
		ID:          "run-1",
		Owner:       storeKey.Owner,
		Repo:        storeKey.Repo,
		Branch:      storeKey.Branch,
		Status:      types.JobEmbedding,
		TotalFiles:  3,
		TotalChunks: 9,
		StartedAt:   time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.PutJob(ctx, job))

	got, err := s.GetJob(ctx, storeKey)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, types.JobEmbedding, got.Status)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Nil(t, got.CompletedAt)
}

func TestPutJob_SupersedesPriorRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := time.Now()
	first := &types.Job{
		ID: "run-1", Owner: storeKey.Owner, Repo: storeKey.Repo, Branch: storeKey.Branch,
		Status: types.JobFailed, Error: "provider down",
		StartedAt: time.Now(), CompletedAt: &done,
	}
	require.NoError(t, s.PutJob(ctx, first))

	second := &types.Job{
		ID: "run-2", Owner: storeKey.Owner, Repo: storeKey.Repo, Branch: storeKey.Branch,
		Status: types.JobPending, StartedAt: time.Now(),
	}
	require.NoError(t, s.PutJob(ctx, second))

	got, err := s.GetJob(ctx, storeKey)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.ID)
	assert.Equal(t, types.JobPending, got.Status)
	assert.Empty(t, got.Error)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), types.RepoKey{Owner: "x", Repo: "y", Branch: "z"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRepositories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	other := types.RepoKey{Owner: "beta", Repo: "svc", Branch: "main"}

	require.NoError(t, s.UpsertChunks(ctx, []types.Chunk{
		testChunk(storeKey, "a.go", 0, []float32{1, 0}),
		testChunk(storeKey, "a.go", 1, []float32{0, 1}),
		testChunk(storeKey, "b.go", 0, []float32{1, 1}),
		testChunk(other, "c.go", 0, []float32{1, 0}),
	}))

	infos, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Ordered by key: acme before beta.
	assert.Equal(t, "acme", infos[0].Owner)
	assert.Equal(t, 2, infos[0].Files)
	assert.Equal(t, 3, infos[0].Chunks)
	assert.Equal(t, "test-model", infos[0].ModelTag)
	// MAX(created_at) comes back as raw text; the parsed timestamp must
	// round-trip to a real time, not fail the scan or stay zero.
	assert.False(t, infos[0].LastIndexedAt.IsZero())
	assert.WithinDuration(t, time.Now(), infos[0].LastIndexedAt, time.Minute)

	assert.Equal(t, "beta", infos[1].Owner)
	assert.Equal(t, 1, infos[1].Chunks)
}

func TestVectorSerialization(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.14159}
	got, err := deserializeVector(serializeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 0.0001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 0.0001)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
