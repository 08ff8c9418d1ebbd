package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// SQLiteStore implements Store using SQLite. All writes go through a single
// connection (SQLite benefits from one writer); cross-run write ordering
// per repository key is the indexer's responsibility.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// dimension returns the store's established embedding dimension, or 0 when
// nothing has been written yet
func (s *SQLiteStore) dimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// UpsertChunks writes chunks in one transaction, idempotently per identity
// tuple. The first write establishes the store's embedding dimension;
// later writes with a different dimension are rejected.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim, err := s.dimension(ctx)
	if err != nil {
		return fmt.Errorf("read store dimension: %w", err)
	}
	for i := range chunks {
		c := &chunks[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %s:%d: %v", ErrInvalidChunk, c.FilePath, c.ChunkIndex, err)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: %s:%d: missing embedding", ErrInvalidChunk, c.FilePath, c.ChunkIndex)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: got %d, store has %d", ErrDimensionMismatch, len(c.Embedding), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('dimension', ?)
		 ON CONFLICT(key) DO NOTHING`, strconv.Itoa(dim)); err != nil {
		return fmt.Errorf("record dimension: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (
			owner, repo, branch, file_path, chunk_index,
			content, context, content_hash, token_count,
			language, chunk_type, chunk_name, start_line, end_line,
			vector, dimension, model_tag, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, repo, branch, file_path, chunk_index) DO UPDATE SET
			content = excluded.content,
			context = excluded.context,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			language = excluded.language,
			chunk_type = excluded.chunk_type,
			chunk_name = excluded.chunk_name,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			vector = excluded.vector,
			dimension = excluded.dimension,
			model_tag = excluded.model_tag
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	// created_at is bound as RFC3339 text rather than time.Time: aggregate
	// reads (MAX in ListRepositories) lose the column decltype, so the
	// driver hands the value back as raw text and we parse it ourselves.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range chunks {
		c := &chunks[i]
		if _, err := stmt.ExecContext(ctx,
			c.Owner, c.Repo, c.Branch, c.FilePath, c.ChunkIndex,
			c.Content, c.Context, c.ContentHash[:], c.TokenCount,
			c.Language, string(c.ChunkType), c.ChunkName, c.StartLine, c.EndLine,
			serializeVector(c.Embedding), len(c.Embedding), c.ModelTag, now,
		); err != nil {
			return fmt.Errorf("upsert chunk %s:%d: %w", c.FilePath, c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// DeleteRepository removes all chunks for the key
func (s *SQLiteStore) DeleteRepository(ctx context.Context, key types.RepoKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE owner = ? AND repo = ? AND branch = ?`,
		key.Owner, key.Repo, key.Branch)
	if err != nil {
		return fmt.Errorf("delete repository %s: %w", key, err)
	}
	return nil
}

// CountChunks returns the number of stored chunks for the key
func (s *SQLiteStore) CountChunks(ctx context.Context, key types.RepoKey) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE owner = ? AND repo = ? AND branch = ?`,
		key.Owner, key.Repo, key.Branch).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks %s: %w", key, err)
	}
	return count, nil
}

// Search loads candidate chunks matching the filters, scores them with
// cosine similarity in Go, and returns the top K above the threshold.
// Ordering: descending similarity, ties broken by ascending file path then
// chunk index.
func (s *SQLiteStore) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidChunk)
	}
	if req.TopK <= 0 {
		return []SearchResult{}, nil
	}

	query := `
		SELECT owner, repo, branch, file_path, chunk_index,
		       content, context, content_hash, token_count,
		       language, chunk_type, chunk_name, start_line, end_line,
		       vector, model_tag
		FROM chunks
		WHERE dimension = ?
	`
	args := []interface{}{len(req.Vector)}
	if req.Owner != "" {
		query += " AND owner = ?"
		args = append(args, req.Owner)
	}
	if req.Repo != "" {
		query += " AND repo = ?"
		args = append(args, req.Repo)
	}
	if req.Branch != "" {
		query += " AND branch = ?"
		args = append(args, req.Branch)
	}
	if req.Language != "" {
		query += " AND language = ?"
		args = append(args, req.Language)
	}
	if req.ModelTag != "" {
		query += " AND model_tag = ?"
		args = append(args, req.ModelTag)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var c types.Chunk
		var hash, vectorBlob []byte
		var chunkType string
		if err := rows.Scan(
			&c.Owner, &c.Repo, &c.Branch, &c.FilePath, &c.ChunkIndex,
			&c.Content, &c.Context, &hash, &c.TokenCount,
			&c.Language, &chunkType, &c.ChunkName, &c.StartLine, &c.EndLine,
			&vectorBlob, &c.ModelTag,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		copy(c.ContentHash[:], hash)
		c.ChunkType = types.ChunkType(chunkType)

		vector, err := deserializeVector(vectorBlob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s:%d: %w", c.FilePath, c.ChunkIndex, err)
		}
		c.Embedding = vector

		similarity := cosineSimilarity(req.Vector, vector)
		if similarity < req.Threshold {
			continue
		}
		results = append(results, SearchResult{Chunk: c, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].Chunk.FilePath != results[j].Chunk.FilePath {
			return results[i].Chunk.FilePath < results[j].Chunk.FilePath
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

// PutJob writes the job record for its key, superseding any prior run
func (s *SQLiteStore) PutJob(ctx context.Context, job *types.Job) error {
	if err := job.Key().Validate(); err != nil {
		return err
	}
	var completedAt interface{}
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			owner, repo, branch, run_id, status, error,
			total_files, indexed_files, skipped_files,
			total_chunks, indexed_chunks, skipped_chunks,
			started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, repo, branch) DO UPDATE SET
			run_id = excluded.run_id,
			status = excluded.status,
			error = excluded.error,
			total_files = excluded.total_files,
			indexed_files = excluded.indexed_files,
			skipped_files = excluded.skipped_files,
			total_chunks = excluded.total_chunks,
			indexed_chunks = excluded.indexed_chunks,
			skipped_chunks = excluded.skipped_chunks,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		job.Owner, job.Repo, job.Branch, job.ID, string(job.Status), job.Error,
		job.TotalFiles, job.IndexedFiles, job.SkippedFiles,
		job.TotalChunks, job.IndexedChunks, job.SkippedChunks,
		job.StartedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.Key(), err)
	}
	return nil
}

// GetJob reads the latest status record for the key
func (s *SQLiteStore) GetJob(ctx context.Context, key types.RepoKey) (*types.Job, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	job := &types.Job{}
	var status string
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, repo, branch, run_id, status, error,
		       total_files, indexed_files, skipped_files,
		       total_chunks, indexed_chunks, skipped_chunks,
		       started_at, completed_at
		FROM jobs WHERE owner = ? AND repo = ? AND branch = ?
	`, key.Owner, key.Repo, key.Branch).Scan(
		&job.Owner, &job.Repo, &job.Branch, &job.ID, &status, &job.Error,
		&job.TotalFiles, &job.IndexedFiles, &job.SkippedFiles,
		&job.TotalChunks, &job.IndexedChunks, &job.SkippedChunks,
		&job.StartedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: job for %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", key, err)
	}
	job.Status = types.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

// ListRepositories summarizes all indexed keys, ordered by key
func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]RepositoryInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, repo, branch,
		       COUNT(DISTINCT file_path) AS files,
		       COUNT(*) AS chunks,
		       MAX(model_tag) AS model_tag,
		       MAX(created_at) AS last_indexed_at
		FROM chunks
		GROUP BY owner, repo, branch
		ORDER BY owner, repo, branch
	`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []RepositoryInfo
	for rows.Next() {
		var info RepositoryInfo
		var lastIndexed sql.NullString
		if err := rows.Scan(&info.Owner, &info.Repo, &info.Branch,
			&info.Files, &info.Chunks, &info.ModelTag, &lastIndexed); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		if lastIndexed.Valid {
			ts, err := time.Parse(time.RFC3339Nano, lastIndexed.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_indexed_at %q: %w", lastIndexed.String, err)
			}
			info.LastIndexedAt = ts
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
