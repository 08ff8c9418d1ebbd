package chunker

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seekr-dev/codeseek/internal/config"
	"github.com/seekr-dev/codeseek/pkg/types"
)

// Chunker splits file content into token-bounded chunks, preferring
// structural boundaries (function/class bodies) when the language has a
// light-weight declaration scanner, and falling back to overlapping line
// windows otherwise.
type Chunker struct {
	targetTokens  int
	overlapTokens int
	maxFileTokens int
	log           zerolog.Logger
}

// New creates a Chunker from configuration
func New(cfg config.ChunkerConfig, log zerolog.Logger) *Chunker {
	targetTokens := cfg.TargetTokens
	if targetTokens <= 0 {
		targetTokens = 500
	}
	maxFileTokens := cfg.MaxFileTokens
	if maxFileTokens <= 0 {
		maxFileTokens = 200000
	}
	return &Chunker{
		targetTokens:  targetTokens,
		overlapTokens: cfg.OverlapTokens,
		maxFileTokens: maxFileTokens,
		log:           log.With().Str("component", "chunker").Logger(),
	}
}

// ChunkFile splits one source file into chunks without embeddings.
// Empty files yield zero chunks; files above the token ceiling are skipped
// with a warning rather than chunked indefinitely. Chunk indices are
// strictly increasing in file order.
func (c *Chunker) ChunkFile(key types.RepoKey, file types.SourceFile) ([]types.Chunk, error) {
	if strings.TrimSpace(file.Content) == "" {
		return nil, nil
	}
	if types.EstimateTokens(file.Content) > c.maxFileTokens {
		c.log.Warn().Str("path", file.Path).
			Int("tokens", types.EstimateTokens(file.Content)).
			Msg("skipping file above token ceiling")
		return nil, nil
	}

	lines := strings.Split(file.Content, "\n")
	units := scanUnits(lines, file.Language)

	var chunks []types.Chunk
	if len(units) > 0 {
		chunks = c.chunkStructural(key, file, lines, units)
	} else {
		chunks = c.chunkWindows(key, file, lines, 0, types.ChunkModuleFragment, "")
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartLine < chunks[j].StartLine })
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].ComputeTokenCount()
		chunks[i].ComputeContentHash()
	}
	return chunks, nil
}

// chunkStructural emits one chunk per declaration unit, window-splitting
// units that exceed the token target, and covers the gaps between units
// with module-fragment windows.
func (c *Chunker) chunkStructural(key types.RepoKey, file types.SourceFile, lines []string, units []unit) []types.Chunk {
	header := c.buildHeader(lines, units)

	covered := make([]bool, len(lines))
	var chunks []types.Chunk

	for _, u := range units {
		for i := u.start; i < u.end && i < len(lines); i++ {
			covered[i] = true
		}
		body := lines[u.start:u.end]
		content := strings.Join(body, "\n")

		if types.EstimateTokens(content) > c.targetTokens {
			// Oversized declaration: split its body into windows, keeping
			// the unit's name and type on every part.
			for _, span := range windowSpans(body, c.targetTokens, c.overlapTokens) {
				chunks = append(chunks, c.newChunk(key, file, header, u.kind, u.name,
					strings.Join(body[span.start:span.end], "\n"),
					u.start+span.start+1, u.start+span.end))
			}
			continue
		}
		chunks = append(chunks, c.newChunk(key, file, header, u.kind, u.name,
			content, u.start+1, u.end))
	}

	// Gaps between declarations become module fragments.
	gapStart := -1
	for i := 0; i <= len(lines); i++ {
		inGap := i < len(lines) && !covered[i] && strings.TrimSpace(lines[i]) != ""
		switch {
		case inGap && gapStart < 0:
			gapStart = i
		case !inGap && gapStart >= 0:
			gap := lines[gapStart:i]
			for _, span := range windowSpans(gap, c.targetTokens, c.overlapTokens) {
				chunks = append(chunks, c.newChunk(key, file, "", types.ChunkModuleFragment, "",
					strings.Join(gap[span.start:span.end], "\n"),
					gapStart+span.start+1, gapStart+span.end))
			}
			gapStart = -1
		}
	}

	return chunks
}

// chunkWindows covers lines[offset:] with overlapping token-bounded windows
func (c *Chunker) chunkWindows(key types.RepoKey, file types.SourceFile, lines []string, offset int, kind types.ChunkType, name string) []types.Chunk {
	var chunks []types.Chunk
	for _, span := range windowSpans(lines, c.targetTokens, c.overlapTokens) {
		content := strings.Join(lines[span.start:span.end], "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, c.newChunk(key, file, "", kind, name,
			content, offset+span.start+1, offset+span.end))
	}
	return chunks
}

func (c *Chunker) newChunk(key types.RepoKey, file types.SourceFile, context string, kind types.ChunkType, name, content string, startLine, endLine int) types.Chunk {
	return types.Chunk{
		Owner:     key.Owner,
		Repo:      key.Repo,
		Branch:    key.Branch,
		FilePath:  file.Path,
		Content:   content,
		Context:   context,
		Language:  file.Language,
		ChunkType: kind,
		ChunkName: name,
		StartLine: startLine,
		EndLine:   endLine,
	}
}

// headerTokenBudget caps the context header so it cannot crowd out the
// chunk body within the embedding token ceiling.
const headerTokenBudget = 100

// buildHeader extracts the file preamble (package/import/module lines
// before the first declaration) used as context for structural chunks.
func (c *Chunker) buildHeader(lines []string, units []unit) string {
	if len(units) == 0 {
		return ""
	}
	first := units[0].start
	var b strings.Builder
	for i := 0; i < first; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if types.EstimateTokens(b.String())+types.EstimateTokens(line) > headerTokenBudget {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
