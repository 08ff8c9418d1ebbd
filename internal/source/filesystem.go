package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// FilesystemSource serves repositories from a local directory tree laid out
// as <root>/<owner>/<repo>. The branch is carried as a metadata label; no
// VCS checkout happens here.
type FilesystemSource struct {
	root         string
	includes     []string
	excludes     []string
	maxFileBytes int64
	log          zerolog.Logger
}

// NewFilesystemSource creates a filesystem-backed content source
func NewFilesystemSource(root string, includes, excludes []string, maxFileBytes int64, log zerolog.Logger) *FilesystemSource {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 1 << 20
	}
	return &FilesystemSource{
		root:         root,
		includes:     includes,
		excludes:     excludes,
		maxFileBytes: maxFileBytes,
		log:          log.With().Str("component", "source").Logger(),
	}
}

// ListFiles returns the repository's source files sorted by path
func (s *FilesystemSource) ListFiles(ctx context.Context, key types.RepoKey) ([]types.SourceFile, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	repoRoot := filepath.Join(s.root, key.Owner, key.Repo)
	info, err := os.Stat(repoRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, key)
	}

	var files []types.SourceFile
	err = filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && s.excluded(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.included(relPath) || s.excluded(relPath) {
			return nil
		}
		if info.Size() > s.maxFileBytes {
			s.log.Warn().Str("path", relPath).Int64("size", info.Size()).
				Msg("skipping oversized file")
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			s.log.Warn().Str("path", relPath).Err(readErr).Msg("skipping unreadable file")
			return nil
		}
		if isBinary(content) {
			return nil
		}

		files = append(files, types.SourceFile{
			Path:     relPath,
			Content:  string(content),
			Language: DetectLanguage(relPath),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", key, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *FilesystemSource) included(path string) bool {
	for _, pattern := range s.includes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *FilesystemSource) excluded(path string) bool {
	for _, pattern := range s.excludes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// isBinary sniffs the first KiB for NUL bytes or invalid UTF-8
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return true
	}
	return !utf8.Valid(probe) && len(probe) == len(content)
}
