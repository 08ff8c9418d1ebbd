package chunker

import "github.com/seekr-dev/codeseek/pkg/types"

// span is a half-open line range [start, end)
type span struct {
	start int
	end   int
}

// windowSpans covers lines with token-budgeted windows. Consecutive windows
// overlap by roughly overlapTokens so context at boundaries is not lost.
// A single line exceeding the budget becomes its own window; the embedding
// adapter's hard truncation is the backstop for such lines.
func windowSpans(lines []string, maxTokens, overlapTokens int) []span {
	if len(lines) == 0 {
		return nil
	}

	var spans []span
	start := 0
	for start < len(lines) {
		end := start
		tokens := 0
		for end < len(lines) {
			lineTokens := types.EstimateTokens(lines[end])
			if tokens > 0 && tokens+lineTokens > maxTokens {
				break
			}
			tokens += lineTokens
			end++
		}
		if end == start {
			end = start + 1
		}
		spans = append(spans, span{start: start, end: end})
		if end >= len(lines) {
			break
		}

		next := end - overlapLines(lines, start, end, overlapTokens)
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}

// overlapLines counts how many trailing lines of the window fit the
// overlap token budget
func overlapLines(lines []string, start, end, overlapTokens int) int {
	if overlapTokens <= 0 {
		return 0
	}
	count := 0
	tokens := 0
	for i := end - 1; i > start && tokens < overlapTokens; i-- {
		tokens += types.EstimateTokens(lines[i])
		count++
	}
	return count
}
