// Package source supplies repository file content to the indexing
// pipeline, filtered to non-binary, size-bounded source files.
package source

import (
	"context"
	"errors"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// Common errors
var (
	// ErrRepositoryNotFound means the repository is inaccessible; the
	// indexer treats this as fatal to the run.
	ErrRepositoryNotFound = errors.New("repository not found")
)

// ContentSource lists the files of a repository at a given branch
type ContentSource interface {
	ListFiles(ctx context.Context, key types.RepoKey) ([]types.SourceFile, error)
}
