package query

import (
	"fmt"
	"strings"

	"github.com/seekr-dev/codeseek/internal/store"
	"github.com/seekr-dev/codeseek/pkg/types"
)

// buildPrompt assembles the question and the retrieved chunks into a
// bounded prompt. Candidates are appended in rank order under file-path
// headers until the context token budget is exhausted; a candidate that
// doesn't fit whole is dropped rather than cut mid-code.
func buildPrompt(question string, candidates []store.SearchResult, contextTokens int) string {
	var b strings.Builder
	b.WriteString("Code context:\n\n")

	used := 0
	for _, cand := range candidates {
		c := cand.Chunk
		header := fmt.Sprintf("--- %s (lines %d-%d", c.FilePath, c.StartLine, c.EndLine)
		if c.ChunkName != "" {
			header += ", " + c.ChunkName
		}
		header += ") ---\n"

		section := header + c.Content + "\n\n"
		cost := types.EstimateTokens(section)
		if used > 0 && used+cost > contextTokens {
			continue
		}
		b.WriteString(section)
		used += cost
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}
