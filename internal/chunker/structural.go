package chunker

import (
	"regexp"
	"strings"

	"github.com/seekr-dev/codeseek/pkg/types"
)

// unit is one declaration found by the structural scanner.
// start/end are 0-based line indices, end exclusive.
type unit struct {
	name  string
	kind  types.ChunkType
	start int
	end   int
}

// declMatcher recognizes a declaration start line for one language
type declMatcher struct {
	re        *regexp.Regexp
	kind      types.ChunkType
	nameGroup int
}

// declMatchers holds per-language declaration scanners. Languages without
// an entry fall back to window chunking. This is a deliberately light-weight
// line scan, not a parse; brace counting determines unit extents.
var declMatchers = map[string][]declMatcher{
	"go": {
		{regexp.MustCompile(`^func\s+(?:\([^)]*\)\s+)?(\w+)`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^type\s+(\w+)\s+(?:struct|interface)\b`), types.ChunkClass, 1},
	},
	"python": {
		{regexp.MustCompile(`^(?:async\s+)?def\s+(\w+)`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^class\s+(\w+)`), types.ChunkClass, 1},
	},
	"javascript": {
		{regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^(?:export\s+)?class\s+(\w+)`), types.ChunkClass, 1},
		{regexp.MustCompile(`^(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`), types.ChunkFunction, 1},
	},
	"typescript": {
		{regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^(?:export\s+)?(?:abstract\s+)?class\s+(\w+)`), types.ChunkClass, 1},
		{regexp.MustCompile(`^(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`), types.ChunkFunction, 1},
	},
	"java": {
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?(?:final\s+)?(?:abstract\s+)?class\s+(\w+)`), types.ChunkClass, 1},
	},
	"rust": {
		{regexp.MustCompile(`^(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(\w+)`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+(\w+)`), types.ChunkClass, 1},
		{regexp.MustCompile(`^impl\b.*?(\w+)\s*(?:<[^>]*>)?\s*\{?\s*$`), types.ChunkClass, 1},
	},
	"ruby": {
		{regexp.MustCompile(`^(?:\s*)def\s+(?:self\.)?(\w+[?!]?)`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^(?:\s*)(?:class|module)\s+(\w+)`), types.ChunkClass, 1},
	},
	"c": {
		{regexp.MustCompile(`^\w[\w\s\*]*\s+\**(\w+)\s*\([^;]*$`), types.ChunkFunction, 1},
	},
	"cpp": {
		{regexp.MustCompile(`^\w[\w\s\*:<>,~]*\s+\**([\w:~]+)\s*\([^;]*$`), types.ChunkFunction, 1},
		{regexp.MustCompile(`^(?:class|struct)\s+(\w+)`), types.ChunkClass, 1},
	},
}

// scanUnits finds declaration units in lines for the given language.
// Returns nil when the language has no scanner or nothing was found.
func scanUnits(lines []string, language string) []unit {
	matchers, ok := declMatchers[language]
	if !ok {
		return nil
	}

	indentSensitive := language == "python" || language == "ruby"
	keywordClosed := language == "ruby"

	var units []unit
	for i := 0; i < len(lines); i++ {
		m, name := matchLine(lines[i], matchers)
		if m == nil {
			continue
		}
		end := unitEnd(lines, i, indentSensitive, keywordClosed)
		units = append(units, unit{name: name, kind: m.kind, start: i, end: end})
		if end > i+1 {
			i = end - 1
		}
	}
	return units
}

func matchLine(line string, matchers []declMatcher) (*declMatcher, string) {
	for i := range matchers {
		m := &matchers[i]
		groups := m.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		name := ""
		if m.nameGroup < len(groups) {
			name = groups[m.nameGroup]
		}
		return m, name
	}
	return nil, ""
}

// unitEnd finds where a declaration body ends. Brace languages get naive
// brace counting from the declaration line; indentation languages end at
// the next non-blank line with indent at or below the declaration's.
// keywordClosed keeps a closing "end" at the declaration's indent inside
// the unit.
func unitEnd(lines []string, start int, indentSensitive, keywordClosed bool) int {
	if indentSensitive {
		declIndent := indentOf(lines[start])
		for i := start + 1; i < len(lines); i++ {
			trimmed := strings.TrimSpace(lines[i])
			if trimmed == "" {
				continue
			}
			if indentOf(lines[i]) <= declIndent {
				if keywordClosed && trimmed == "end" {
					return i + 1
				}
				return i
			}
		}
		return len(lines)
	}

	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i + 1
		}
		// Declaration without a body within a few lines (e.g. prototype)
		if !opened && i-start >= 3 {
			return start + 1
		}
	}
	if !opened {
		return start + 1
	}
	return len(lines)
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
